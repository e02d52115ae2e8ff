package branding

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"surveydialer/internal/metrics"
	"surveydialer/internal/tracker"

	"github.com/golang-jwt/jwt/v5"
)

// expiryWarnWindow triggers a warning when the issued token has less of its
// lifetime left than this.
const expiryWarnWindow = 5 * time.Minute

// Recorder is the tracker subset the flow reports into.
type Recorder interface {
	RecordAuthOutcome(correlationID string, res *tracker.AuthResponse, requestID string)
	RecordPushOutcome(correlationID string, success bool, response json.RawMessage, requestID string)
}

// Flow sequences the two branding legs for one call attempt. It holds no
// per-call state; every outcome goes through the Recorder.
type Flow struct {
	client     *Client
	recorder   Recorder
	fromNumber string
	delay      time.Duration
	log        *slog.Logger
	now        func() time.Time
}

func NewFlow(client *Client, recorder Recorder, fromNumber string, propagationDelay time.Duration, log *slog.Logger) *Flow {
	if log == nil {
		log = slog.Default()
	}
	return &Flow{
		client:     client,
		recorder:   recorder,
		fromNumber: fromNumber,
		delay:      propagationDelay,
		log:        log,
		now:        time.Now,
	}
}

// Brand runs auth then push for one correlation id and waits out the
// propagation delay on success. A false return means the call should proceed
// unbranded; it is never fatal to the attempt.
func (f *Flow) Brand(ctx context.Context, correlationID, toNumber string) bool {
	res, requestID, err := f.client.Auth(ctx)
	if err != nil {
		f.log.Error("branding auth failed, call proceeds unbranded",
			"correlation_id", correlationID, "request_id", requestID, "err", err)
		f.recorder.RecordAuthOutcome(correlationID, authResponse(res), requestID)
		metrics.IncBrandingRequest("auth", "failed")
		return false
	}

	f.recorder.RecordAuthOutcome(correlationID, authResponse(res), requestID)
	metrics.IncBrandingRequest("auth", "success")
	f.warnIfExpiringSoon(res.Token, correlationID)

	raw, pushRequestID, err := f.client.Push(ctx, res.Token, f.fromNumber, toNumber)
	if err != nil {
		f.log.Error("branding push failed, call proceeds unbranded",
			"correlation_id", correlationID, "request_id", pushRequestID, "err", err)
		f.recorder.RecordPushOutcome(correlationID, false, nil, pushRequestID)
		metrics.IncBrandingRequest("push", "failed")
		return false
	}
	f.recorder.RecordPushOutcome(correlationID, true, raw, pushRequestID)
	metrics.IncBrandingRequest("push", "success")

	if f.delay > 0 {
		timer := time.NewTimer(f.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
	return true
}

// warnIfExpiringSoon decodes the exp claim without verifying the signature;
// the token was just handed to us over the authenticated channel.
func (f *Flow) warnIfExpiringSoon(token, correlationID string) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	remaining := exp.Sub(f.now())
	if remaining < expiryWarnWindow {
		f.log.Warn("branding token expires soon",
			"correlation_id", correlationID, "remaining", remaining.Round(time.Second))
	}
}

func authResponse(res *AuthResult) *tracker.AuthResponse {
	if res == nil {
		return nil
	}
	return &tracker.AuthResponse{Token: res.Token, ExpiresIn: res.ExpiresIn}
}
