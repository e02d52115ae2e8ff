package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"surveydialer/internal/tracker"
)

func TestWriteCallRecord_WritesPrimaryAndLatest(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	rec := tracker.CallRecord{
		CorrelationID: "call_1700000000_15551234567",
		ToNumber:      "+15551234567",
		StartedAt:     time.Unix(1700000000, 0).UTC(),
		Status:        tracker.StatusInitializing,
	}
	if err := s.WriteCallRecord(rec); err != nil {
		t.Fatalf("write: %v", err)
	}

	primary := filepath.Join(dir, "call_1700000000_15551234567.json")
	latest := filepath.Join(dir, "number_15551234567_latest.json")
	for _, p := range []string{primary, latest} {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		var got tracker.CallRecord
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", p, err)
		}
		if got.CorrelationID != rec.CorrelationID {
			t.Fatalf("roundtrip mismatch in %s", p)
		}
	}
}

func TestWriteCallRecord_DoesNotPersistRawToken(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewStore(dir)

	raw := "eyToken1234567890xyz"
	exp := 3600
	rec := tracker.CallRecord{
		CorrelationID: "call_1_1",
		ToNumber:      "1",
		Branding: tracker.BrandingOutcomes{
			Auth: &tracker.AuthOutcome{
				Success:        true,
				Token:          tracker.SanitizeToken(raw),
				TokenExpiresIn: &exp,
			},
		},
	}
	if err := s.WriteCallRecord(rec); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "call_1_1.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(data), raw) {
		t.Fatalf("raw token found in persisted artifact")
	}
	if !strings.Contains(string(data), "eyToken123...") {
		t.Fatalf("expected truncated token prefix in artifact")
	}
}

func TestAppendWebhook_AppendsJSONL(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewStore(dir)

	for i := 0; i < 3; i++ {
		if err := s.AppendWebhook("dtmf_input", "CONV1", json.RawMessage(`{"dtmf":{"digits":"1"}}`)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "webhooks", "dtmf_input_CONV1.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 JSONL lines, got %d", len(lines))
	}
}

func TestWriteSurveyResponses(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewStore(dir)

	if err := s.WriteSurveyResponses("CONV1", map[string]string{"device_type": "1"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "responses", "survey_CONV1.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["device_type"] != "1" {
		t.Fatalf("unexpected responses: %v", got)
	}
}
