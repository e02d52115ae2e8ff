package tracker

import (
	"encoding/json"
	"time"
)

// CallRecord is the authoritative in-memory record for one outbound call
// attempt. It stitches the branding handshake, the call-creation response and
// the webhook event stream together under a single correlation id.
//
// Invariants:
// - CorrelationID is immutable once allocated.
// - Call.ConversationUUID is the only key the provider echoes back on
//   webhooks; it becomes known at RecordCallCreated.
// - Events are append-only in arrival order; no reordering is attempted.

type CallRecord struct {
	CorrelationID string    `json:"correlation_id"`
	ToNumber      string    `json:"to_number"`
	StartedAt     time.Time `json:"timestamp_started"`

	Branding BrandingOutcomes `json:"branding"`
	Call     CallInfo         `json:"call"`

	Status Status `json:"status"`
}

type BrandingOutcomes struct {
	Auth *AuthOutcome `json:"auth"`
	Push *PushOutcome `json:"push"`
}

// AuthOutcome captures the branding auth leg. Token holds at most a
// truncated prefix; the raw secret is never stored on the record.
type AuthOutcome struct {
	Timestamp      time.Time `json:"timestamp"`
	RequestID      string    `json:"request_id,omitempty"`
	Success        bool      `json:"success"`
	Token          string    `json:"token,omitempty"`
	TokenExpiresIn *int      `json:"token_expires_in"`
}

type PushOutcome struct {
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
	Success   bool            `json:"success"`
	Response  json.RawMessage `json:"response,omitempty"`
}

type CallInfo struct {
	CallUUID         string          `json:"call_uuid,omitempty"`
	ConversationUUID string          `json:"conversation_uuid,omitempty"`
	Status           string          `json:"status,omitempty"`
	Direction        string          `json:"direction,omitempty"`
	CreatedAt        time.Time       `json:"created_at,omitempty"`
	Events           []CallEvent     `json:"events"`
	StepRecordings   []StepRecording `json:"step_recordings,omitempty"`
}

// CallEvent is one raw webhook delivery. Duplicates are kept; arrival order
// is the only order.
type CallEvent struct {
	Timestamp time.Time       `json:"timestamp"`
	Type      string          `json:"type"`
	Raw       json.RawMessage `json:"data"`
}

// StepRecording is created when a survey step's recording starts and looked
// up by RecordingUUID when the provider announces the artifact.
type StepRecording struct {
	StepID           string    `json:"step"`
	RecordingUUID    string    `json:"recording_uuid"`
	CallUUID         string    `json:"call_uuid"`
	ConversationUUID string    `json:"conversation_uuid"`
	StartedAt        time.Time `json:"started_at"`
}

// CallCreated is the subset of the provider's create-call response the
// tracker cares about.
type CallCreated struct {
	CallUUID         string `json:"uuid"`
	ConversationUUID string `json:"conversation_uuid"`
	Status           string `json:"status"`
	Direction        string `json:"direction"`
}

// AuthResponse is the subset of the branding auth response the tracker
// records. A nil response means the auth leg failed outright.
type AuthResponse struct {
	Token     string
	ExpiresIn int
}

type Status string

const (
	StatusInitializing    Status = "initializing"
	StatusRinging         Status = "ringing"
	StatusAnswered        Status = "answered"
	StatusHuman           Status = "human"
	StatusMachine         Status = "machine"
	StatusSurveyCompleted Status = "survey_completed"
	StatusFailed          Status = "failed"
)

// Clone returns a deep copy safe to hand to sinks and API readers while the
// original keeps mutating.
func (r CallRecord) Clone() CallRecord {
	out := r

	if r.Branding.Auth != nil {
		a := *r.Branding.Auth
		if r.Branding.Auth.TokenExpiresIn != nil {
			v := *r.Branding.Auth.TokenExpiresIn
			a.TokenExpiresIn = &v
		}
		out.Branding.Auth = &a
	}
	if r.Branding.Push != nil {
		p := *r.Branding.Push
		p.Response = append(json.RawMessage(nil), r.Branding.Push.Response...)
		out.Branding.Push = &p
	}

	out.Call.Events = make([]CallEvent, len(r.Call.Events))
	for i, e := range r.Call.Events {
		e.Raw = append(json.RawMessage(nil), e.Raw...)
		out.Call.Events[i] = e
	}
	if r.Call.StepRecordings != nil {
		out.Call.StepRecordings = append([]StepRecording(nil), r.Call.StepRecordings...)
	}
	return out
}
