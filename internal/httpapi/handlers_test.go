package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"surveydialer/internal/audit"
	"surveydialer/internal/auth"
	"surveydialer/internal/config"
	"surveydialer/internal/ivr"
	"surveydialer/internal/reporting"
	"surveydialer/internal/tracker"

	"github.com/gin-gonic/gin"
)

type stubPlacer struct {
	dialed []string
	err    error
}

func (s *stubPlacer) PlaceCall(_ context.Context, toNumber string) (string, error) {
	s.dialed = append(s.dialed, toNumber)
	return "call_1_" + toNumber, s.err
}

type harness struct {
	router  *gin.Engine
	tracker *tracker.Tracker
	placer  *stubPlacer
	manager *auth.Manager
	audit   *audit.MemoryRepo
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	manager, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}

	trk := tracker.New(tracker.NopSink{}, log)
	store := ivr.NewSurveyStore(nil, log)
	placer := &stubPlacer{}
	auditRepo := audit.NewMemoryRepo()
	h := Handlers{
		Auth:    manager,
		Tracker: trk,
		Dialer:  placer,
		Reports: reporting.NewService(trk, store, nil),
		Audit:   audit.NewService(auditRepo),
	}

	r := gin.New()
	r.POST("/v1/auth/login", h.Login)
	v1 := r.Group("/v1", auth.RequireAccessToken(manager))
	{
		v1.GET("/calls", h.ListCalls)
		v1.GET("/calls/summary", h.CallsSummary)
		v1.GET("/calls/:conversation_uuid", h.GetCall)
		v1.GET("/surveys/summary", h.SurveySummary)
		v1.POST("/calls", auth.RequireRole(auth.RoleOperator), h.Dial)
	}

	return &harness{router: r, tracker: trk, placer: placer, manager: manager, audit: auditRepo}
}

func (h *harness) token(t *testing.T, role string) string {
	t.Helper()
	pair, err := h.manager.IssuePair(time.Now(), "op-1", role)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	return pair.AccessToken
}

func (h *harness) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func TestLoginIssuesTokenPair(t *testing.T) {
	h := newHarness(t)

	w := h.request(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"operator_id": "op-1", "role": auth.RoleOperator,
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["access_token"] == "" || body["refresh_token"] == "" {
		t.Fatalf("missing tokens: %v", body)
	}
}

func TestCallsRequireToken(t *testing.T) {
	h := newHarness(t)
	if w := h.request(t, http.MethodGet, "/v1/calls", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestListAndGetCall(t *testing.T) {
	h := newHarness(t)
	id, err := h.tracker.Start("15551230001")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	h.tracker.RecordCallCreated(id, tracker.CallCreated{
		CallUUID: "uuid-1", ConversationUUID: "conv-1", Status: "started", Direction: "outbound",
	})
	token := h.token(t, auth.RoleViewer)

	w := h.request(t, http.MethodGet, "/v1/calls", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list struct {
		Calls []tracker.CallRecord `json:"calls"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Calls) != 1 || list.Calls[0].CorrelationID != id {
		t.Fatalf("unexpected list: %+v", list.Calls)
	}

	w = h.request(t, http.MethodGet, "/v1/calls/conv-1", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	w = h.request(t, http.MethodGet, "/v1/calls/conv-missing", token, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing conversation status = %d", w.Code)
	}
}

func TestDialRequiresOperatorRole(t *testing.T) {
	h := newHarness(t)

	w := h.request(t, http.MethodPost, "/v1/calls", h.token(t, auth.RoleViewer), map[string]string{
		"to_number": "15551230001",
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("viewer dial status = %d", w.Code)
	}
	if len(h.placer.dialed) != 0 {
		t.Fatal("viewer placed a call")
	}

	w = h.request(t, http.MethodPost, "/v1/calls", h.token(t, auth.RoleOperator), map[string]string{
		"to_number": "15551230001",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("operator dial status = %d", w.Code)
	}
	if len(h.placer.dialed) != 1 || h.placer.dialed[0] != "15551230001" {
		t.Fatalf("dialed = %v", h.placer.dialed)
	}

	evs := h.audit.Events()
	if len(evs) != 1 {
		t.Fatalf("audit events = %d", len(evs))
	}
	if evs[0].Action != audit.ActionDial || evs[0].OperatorID != "op-1" || evs[0].ToNumber != "15551230001" {
		t.Fatalf("audit event = %+v", evs[0])
	}
}

func TestSummariesRespond(t *testing.T) {
	h := newHarness(t)
	token := h.token(t, auth.RoleViewer)

	for _, path := range []string{"/v1/calls/summary", "/v1/surveys/summary"} {
		if w := h.request(t, http.MethodGet, path, token, nil); w.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, w.Code)
		}
	}
}
