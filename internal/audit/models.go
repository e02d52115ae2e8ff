package audit

import "time"

// Event is an immutable, append-only record of an operator action.
//
// Invariants:
// - Events are never updated or deleted.
// - actor and ip capture are best-effort; do not block call flows on audit failures.

type Event struct {
	ID string `json:"id"`

	// Action indicates the business category of the audit record.
	Action Action `json:"action"`

	// OperatorID is the authenticated operator causing the event.
	OperatorID string `json:"operator_id,omitempty"`
	Role       string `json:"role,omitempty"`

	// IPAddress should capture the original client IP when available.
	IPAddress string `json:"ip_address,omitempty"`

	// Target identifiers (optional, depending on the action).
	CorrelationID string `json:"correlation_id,omitempty"`
	ToNumber      string `json:"to_number,omitempty"`
	TargetCount   int    `json:"target_count,omitempty"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type Action string

const (
	ActionDial       Action = "dial"
	ActionCampaign   Action = "campaign"
	ActionRetrySweep Action = "retry_sweep"
)
