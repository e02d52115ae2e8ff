package ivr

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"surveydialer/internal/tracker"
	"surveydialer/internal/voice"
)

type fakeRecorder struct {
	starts []voice.StartRecordingRequest
	stops  int
	nextID int
}

func (f *fakeRecorder) StartRecording(_ context.Context, _ string, req voice.StartRecordingRequest) (*voice.StartRecordingResponse, error) {
	f.starts = append(f.starts, req)
	f.nextID++
	return &voice.StartRecordingResponse{RecordingUUID: "rec-" + string(rune('0'+f.nextID))}, nil
}

func (f *fakeRecorder) StopRecording(context.Context, string) error {
	f.stops++
	return nil
}

type fakeCalls struct {
	recordings []tracker.StepRecording
	statuses   []tracker.Status
}

func (f *fakeCalls) RecordStepRecording(_ string, sr tracker.StepRecording) {
	f.recordings = append(f.recordings, sr)
}

func (f *fakeCalls) SetStatus(_ string, status tracker.Status) {
	f.statuses = append(f.statuses, status)
}

func newTestMachine(t *testing.T) (*Machine, *fakeRecorder, *fakeCalls) {
	t.Helper()
	rec := &fakeRecorder{}
	calls := &fakeCalls{}
	m := NewMachine(nil, NewSurveyStore(nil, nil), calls, rec,
		"https://example.test/webhooks/dtmf_input",
		"https://example.test/webhooks/recording",
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return m, rec, calls
}

func TestHumanDetectedStartsFirstStep(t *testing.T) {
	m, rec, calls := newTestMachine(t)

	ncco := m.OnHumanDetected(context.Background(), "conv-1", "call-1")

	if len(ncco) != 3 {
		t.Fatalf("expected intro + question + input, got %d actions", len(ncco))
	}
	if _, ok := ncco[0].(voice.TalkAction); !ok {
		t.Fatalf("first action = %T, want talk", ncco[0])
	}
	in, ok := ncco[2].(voice.InputAction)
	if !ok {
		t.Fatalf("third action = %T, want input", ncco[2])
	}
	if in.EventURL[0] != "https://example.test/webhooks/dtmf_input" {
		t.Errorf("input event url = %q", in.EventURL[0])
	}

	if len(rec.starts) != 1 {
		t.Fatalf("expected one recording start, got %d", len(rec.starts))
	}
	if rec.starts[0].Channels != 1 || rec.starts[0].EndOnKey != "*" {
		t.Errorf("unexpected recording request: %+v", rec.starts[0])
	}
	if len(calls.recordings) != 1 || calls.recordings[0].StepID != "device_type" {
		t.Fatalf("step recording not tracked: %+v", calls.recordings)
	}
}

func TestValidInputAdvances(t *testing.T) {
	m, rec, calls := newTestMachine(t)
	m.OnHumanDetected(context.Background(), "conv-1", "call-1")

	ncco := m.OnInput(context.Background(), "conv-1", "call-1", "1", "")

	got := m.store.Get("conv-1")
	if got["device_type"] != "1" {
		t.Fatalf("device_type = %q, want 1", got["device_type"])
	}
	if rec.stops != 1 {
		t.Errorf("stops = %d, want 1", rec.stops)
	}
	// The second bracket: start for saw_logo.
	if len(calls.recordings) != 2 || calls.recordings[1].StepID != "saw_logo" {
		t.Fatalf("second step recording not tracked: %+v", calls.recordings)
	}
	if len(ncco) != 2 {
		t.Fatalf("expected question + input, got %d actions", len(ncco))
	}
}

func TestSpokenSynonymEqualsDigit(t *testing.T) {
	m, _, _ := newTestMachine(t)
	m.OnHumanDetected(context.Background(), "conv-1", "call-1")

	m.OnInput(context.Background(), "conv-1", "call-1", "", "iPhone")
	m.OnInput(context.Background(), "conv-1", "call-1", "", "Yes")

	got := m.store.Get("conv-1")
	if got["device_type"] != "1" || got["saw_logo"] != "1" {
		t.Fatalf("responses = %v", got)
	}
}

func TestGoCommandReplaysCurrentQuestion(t *testing.T) {
	m, rec, _ := newTestMachine(t)
	m.OnHumanDetected(context.Background(), "conv-1", "call-1")
	stopsBefore := rec.stops

	ncco := m.OnInput(context.Background(), "conv-1", "call-1", "", "Go")

	if len(ncco) != 2 {
		t.Fatalf("expected the first question again, got %d actions", len(ncco))
	}
	if got := m.store.Get("conv-1"); len(got) != 0 {
		t.Fatalf("start command persisted a response: %v", got)
	}
	if rec.stops != stopsBefore {
		t.Error("start command touched the recording bracket")
	}
}

func TestInvalidInputRepromptsIdentically(t *testing.T) {
	m, rec, _ := newTestMachine(t)
	m.OnHumanDetected(context.Background(), "conv-1", "call-1")
	stopsBefore := rec.stops

	first := m.OnInput(context.Background(), "conv-1", "call-1", "", "banana")
	second := m.OnInput(context.Background(), "conv-1", "call-1", "9", "")

	if !reflect.DeepEqual(first, second) {
		t.Fatal("reprompt NCCOs differ between invalid attempts")
	}
	if len(m.store.Get("conv-1")) != 0 {
		t.Fatalf("invalid input persisted a response: %v", m.store.Get("conv-1"))
	}
	if rec.stops != stopsBefore {
		t.Errorf("invalid input touched the recording bracket")
	}
}

func TestSurveyCompletion(t *testing.T) {
	m, _, calls := newTestMachine(t)
	m.OnHumanDetected(context.Background(), "conv-1", "call-1")

	m.OnInput(context.Background(), "conv-1", "call-1", "2", "")
	m.OnInput(context.Background(), "conv-1", "call-1", "1", "")
	final := m.OnInput(context.Background(), "conv-1", "call-1", "", "no")

	if len(final) != 1 {
		t.Fatalf("completion NCCO has %d actions, want 1", len(final))
	}
	if len(calls.statuses) != 1 || calls.statuses[0] != tracker.StatusSurveyCompleted {
		t.Fatalf("statuses = %v", calls.statuses)
	}
	if !m.store.Finalized("conv-1") {
		t.Fatal("conversation not finalized")
	}
	want := map[string]string{"device_type": "2", "saw_logo": "1", "saw_caller_id": "2"}
	if !reflect.DeepEqual(m.store.Get("conv-1"), want) {
		t.Fatalf("responses = %v, want %v", m.store.Get("conv-1"), want)
	}
}

func TestReplayAfterCompletionChangesNothing(t *testing.T) {
	m, rec, calls := newTestMachine(t)
	m.OnHumanDetected(context.Background(), "conv-1", "call-1")
	m.OnInput(context.Background(), "conv-1", "call-1", "1", "")
	m.OnInput(context.Background(), "conv-1", "call-1", "1", "")
	m.OnInput(context.Background(), "conv-1", "call-1", "1", "")
	stops, statuses := rec.stops, len(calls.statuses)

	replay := m.OnInput(context.Background(), "conv-1", "call-1", "2", "")

	if len(replay) != 1 {
		t.Fatalf("replay NCCO has %d actions, want completion", len(replay))
	}
	if m.store.Get("conv-1")["device_type"] != "1" {
		t.Fatal("replay rewrote a finalized answer")
	}
	if rec.stops != stops || len(calls.statuses) != statuses {
		t.Error("replay touched recordings or status")
	}
}

func TestMissingCallUUIDStillPrompts(t *testing.T) {
	m, rec, _ := newTestMachine(t)

	ncco := m.OnHumanDetected(context.Background(), "conv-1", "")

	if len(ncco) != 3 {
		t.Fatalf("expected full prompt without a call uuid, got %d actions", len(ncco))
	}
	if len(rec.starts) != 0 || rec.stops != 0 {
		t.Error("recording bracket attempted without a call uuid")
	}
}

func TestMachineDetectionBranches(t *testing.T) {
	m, _, _ := newTestMachine(t)

	beep := m.OnMachineDetected("beep_start")
	screener := m.OnMachineDetected("")

	if reflect.DeepEqual(beep, screener) {
		t.Fatal("voicemail and screener prompts should differ")
	}
	data, err := json.Marshal(beep)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw[0]["action"] != "talk" {
		t.Fatalf("action = %v", raw[0]["action"])
	}
}
