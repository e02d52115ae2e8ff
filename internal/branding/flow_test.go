package branding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"surveydialer/internal/tracker"
)

type recordedOutcome struct {
	correlationID string
	auth          *tracker.AuthResponse
	pushSuccess   bool
	requestID     string
}

type stubRecorder struct {
	mu    sync.Mutex
	auths []recordedOutcome
	pushs []recordedOutcome
}

func (r *stubRecorder) RecordAuthOutcome(correlationID string, res *tracker.AuthResponse, requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auths = append(r.auths, recordedOutcome{correlationID: correlationID, auth: res, requestID: requestID})
}

func (r *stubRecorder) RecordPushOutcome(correlationID string, success bool, _ json.RawMessage, requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushs = append(r.pushs, recordedOutcome{correlationID: correlationID, pushSuccess: success, requestID: requestID})
}

func newTestFlow(t *testing.T, authHandler, pushHandler http.HandlerFunc) (*Flow, *stubRecorder, func()) {
	t.Helper()
	authSrv := httptest.NewServer(authHandler)
	pushSrv := httptest.NewServer(pushHandler)

	client := NewClient(Config{
		AuthURL:   authSrv.URL,
		PushURL:   pushSrv.URL,
		APIKey:    "key",
		APISecret: "secret",
	}, nil)

	rec := &stubRecorder{}
	flow := NewFlow(client, rec, "15550001111", 0, nil)
	return flow, rec, func() {
		authSrv.Close()
		pushSrv.Close()
	}
}

func TestBrand_SuccessRecordsBothLegs(t *testing.T) {
	var gotPush pushRequest

	flow, rec, cleanup := newTestFlow(t,
		func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-API-KEY") != "key" || r.Header.Get("X-SECRET-KEY") != "secret" {
				t.Errorf("missing auth headers")
			}
			w.Header().Set("X-Forp-Meta-Request-Id", "auth-req-1")
			json.NewEncoder(w).Encode(AuthResult{Token: "tok-abcdefghij", ExpiresIn: 3600})
		},
		func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok-abcdefghij" {
				t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
			}
			json.NewDecoder(r.Body).Decode(&gotPush)
			w.Header().Set("X-Forp-Meta-Request-Id", "push-req-1")
			w.Write([]byte(`{"status":"accepted"}`))
		},
	)
	defer cleanup()

	if !flow.Brand(context.Background(), "corr-1", "15551234567") {
		t.Fatalf("expected branding success")
	}

	if len(rec.auths) != 1 || rec.auths[0].auth == nil || rec.auths[0].auth.Token != "tok-abcdefghij" {
		t.Fatalf("unexpected auth outcomes: %+v", rec.auths)
	}
	if rec.auths[0].requestID != "auth-req-1" {
		t.Fatalf("expected auth request id forwarded, got %q", rec.auths[0].requestID)
	}
	if len(rec.pushs) != 1 || !rec.pushs[0].pushSuccess || rec.pushs[0].requestID != "push-req-1" {
		t.Fatalf("unexpected push outcomes: %+v", rec.pushs)
	}
	if gotPush.ANumber != "+15550001111" || gotPush.BNumber != "+15551234567" {
		t.Fatalf("expected plus-prefixed numbers, got %+v", gotPush)
	}
}

func TestBrand_AuthFailureDegradesToUnbranded(t *testing.T) {
	flow, rec, cleanup := newTestFlow(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Forp-Meta-Request-Id", "auth-req-err")
			w.WriteHeader(http.StatusUnauthorized)
		},
		func(w http.ResponseWriter, r *http.Request) {
			t.Errorf("push must not be called when auth fails")
		},
	)
	defer cleanup()

	if flow.Brand(context.Background(), "corr-1", "15551234567") {
		t.Fatalf("expected branding failure")
	}

	if len(rec.auths) != 1 || rec.auths[0].auth != nil {
		t.Fatalf("expected one failed auth outcome, got %+v", rec.auths)
	}
	// Request id survives the error path.
	if rec.auths[0].requestID != "auth-req-err" {
		t.Fatalf("expected request id from error response, got %q", rec.auths[0].requestID)
	}
	if len(rec.pushs) != 0 {
		t.Fatalf("expected no push outcome")
	}
}

func TestBrand_PushFailureRecordsOutcomeWithRequestID(t *testing.T) {
	flow, rec, cleanup := newTestFlow(t,
		func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(AuthResult{Token: "tok", ExpiresIn: 60})
		},
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Forp-Meta-Request-Id", "push-req-err")
			w.WriteHeader(http.StatusBadGateway)
		},
	)
	defer cleanup()

	if flow.Brand(context.Background(), "corr-1", "15551234567") {
		t.Fatalf("expected branding failure")
	}
	if len(rec.pushs) != 1 || rec.pushs[0].pushSuccess {
		t.Fatalf("expected one failed push outcome, got %+v", rec.pushs)
	}
	if rec.pushs[0].requestID != "push-req-err" {
		t.Fatalf("expected request id from error response, got %q", rec.pushs[0].requestID)
	}
}

func TestBrand_PropagationDelayHonorsCancellation(t *testing.T) {
	flow, _, cleanup := newTestFlow(t,
		func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(AuthResult{Token: "tok", ExpiresIn: 60})
		},
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		},
	)
	defer cleanup()
	flow.delay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	done := make(chan bool, 1)
	go func() { done <- flow.Brand(ctx, "corr-1", "15551234567") }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Brand did not return after context cancellation")
	}
}

func TestEnsurePlusPrefix(t *testing.T) {
	cases := []struct{ in, want string }{
		{"15551234567", "+15551234567"},
		{"+15551234567", "+15551234567"},
		{" 15551234567 ", "+15551234567"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := ensurePlusPrefix(tc.in); got != tc.want {
			t.Fatalf("ensurePlusPrefix(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
