// Package dialer places branded outbound survey calls: correlation first,
// branding second, provider create-call last, with bounded retries for
// transient provider failures.
package dialer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"surveydialer/internal/metrics"
	"surveydialer/internal/tracker"
	"surveydialer/internal/voice"
)

// CallLog is the tracker subset the dialer writes to.
type CallLog interface {
	Start(toNumber string) (string, error)
	RecordCallCreated(correlationID string, res tracker.CallCreated)
	MarkFailed(correlationID string)
}

// Brander runs the pre-call branding flow. A false return means the call
// proceeds unbranded.
type Brander interface {
	Brand(ctx context.Context, correlationID, toNumber string) bool
}

// CallCreator is the voice-client subset the dialer needs.
type CallCreator interface {
	CreateCall(ctx context.Context, req voice.CreateCallRequest) (*voice.CreateCallResponse, error)
}

type Config struct {
	FromNumber   string
	RingingTimer int

	MaxRetries        int
	RetryInitialDelay time.Duration

	// EventURL and RecordingURL are the public webhook endpoints handed to
	// the provider at create time.
	EventURL     string
	RecordingURL string
}

type Dialer struct {
	cfg   Config
	calls CallLog
	brand Brander
	voice CallCreator
	log   *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, calls CallLog, brand Brander, creator CallCreator, log *slog.Logger) *Dialer {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryInitialDelay <= 0 {
		cfg.RetryInitialDelay = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dialer{
		cfg:   cfg,
		calls: calls,
		brand: brand,
		voice: creator,
		log:   log,
		sleep: sleepCtx,
	}
}

// PlaceCall runs one outbound call end to end and returns the correlation
// id. Branding failure degrades gracefully; create-call failure after the
// retry budget marks the record failed.
func (d *Dialer) PlaceCall(ctx context.Context, toNumber string) (string, error) {
	correlationID, err := d.calls.Start(toNumber)
	if err != nil {
		return "", err
	}
	log := d.log.With("correlation_id", correlationID, "to", toNumber)

	if d.brand != nil {
		if !d.brand.Brand(ctx, correlationID, toNumber) {
			log.Warn("branding failed, continuing unbranded")
		}
	}

	req := voice.CreateCallRequest{
		To:           []voice.Endpoint{{Type: "phone", Number: toNumber}},
		From:         voice.Endpoint{Type: "phone", Number: d.cfg.FromNumber},
		RingingTimer: d.cfg.RingingTimer,
		NCCO:         voice.NCCO{voice.FullCallRecord(d.cfg.RecordingURL)},
		AdvancedMachineDetection: &voice.AdvancedMachineDetection{
			Behavior:    "continue",
			Mode:        "detect_beep",
			BeepTimeout: 45,
		},
		EventURL:    []string{d.cfg.EventURL},
		EventMethod: "POST",
	}

	res, err := d.createWithRetry(ctx, log, req)
	if err != nil {
		d.calls.MarkFailed(correlationID)
		metrics.IncCallPlaced("failed")
		return correlationID, fmt.Errorf("dialer: create call for %s: %w", correlationID, err)
	}

	d.calls.RecordCallCreated(correlationID, tracker.CallCreated{
		CallUUID:         res.UUID,
		ConversationUUID: res.ConversationUUID,
		Status:           res.Status,
		Direction:        res.Direction,
	})
	metrics.IncCallPlaced("success")
	log.Info("call created",
		"call_uuid", res.UUID,
		"conversation_uuid", res.ConversationUUID,
		"status", res.Status)
	return correlationID, nil
}

// createWithRetry retries transient provider failures with doubling backoff.
// Permanent API errors fail immediately.
func (d *Dialer) createWithRetry(ctx context.Context, log *slog.Logger, req voice.CreateCallRequest) (*voice.CreateCallResponse, error) {
	var lastErr error
	for attempt := 0; attempt < d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := d.sleep(ctx, d.cfg.RetryInitialDelay*(1<<(attempt-1))); err != nil {
				return nil, err
			}
		}
		res, err := d.voice.CreateCall(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !voice.IsTransient(err) {
			return nil, err
		}
		log.Warn("create call attempt failed", "attempt", attempt+1, "err", err)
	}
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
