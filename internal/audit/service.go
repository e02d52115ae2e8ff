package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records operator actions taken through the API.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records through the public API.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Action == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogDial records a single outbound call placed by an operator.
func (s *Service) LogDial(ctx context.Context, operatorID, role, ip, toNumber, correlationID string) error {
	return s.Append(ctx, Event{
		Action:        ActionDial,
		OperatorID:    operatorID,
		Role:          role,
		IPAddress:     ip,
		ToNumber:      toNumber,
		CorrelationID: correlationID,
		Message:       "call placed",
	})
}

// LogCampaign records the start of a paced campaign run.
func (s *Service) LogCampaign(ctx context.Context, operatorID, role, ip string, targets int) error {
	return s.Append(ctx, Event{
		Action:      ActionCampaign,
		OperatorID:  operatorID,
		Role:        role,
		IPAddress:   ip,
		TargetCount: targets,
		Message:     "campaign started",
	})
}

// LogRetrySweep records a manual sweep of the failed download list.
func (s *Service) LogRetrySweep(ctx context.Context, operatorID, role, ip string) error {
	return s.Append(ctx, Event{
		Action:     ActionRetrySweep,
		OperatorID: operatorID,
		Role:       role,
		IPAddress:  ip,
		Message:    "failed downloads swept",
	})
}
