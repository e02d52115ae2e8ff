package tracker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Sink persists a sanitized snapshot of a call record after each mutation.
// Persistence is best-effort: a sink error is logged and never aborts the
// in-memory mutation.
type Sink interface {
	WriteCallRecord(rec CallRecord) error
}

// NopSink discards snapshots. Useful for tests.
type NopSink struct{}

func (NopSink) WriteCallRecord(CallRecord) error { return nil }

// MultiSink fans a snapshot out to several sinks. Every sink runs; the first
// error is reported.
type MultiSink []Sink

func (m MultiSink) WriteCallRecord(rec CallRecord) error {
	var first error
	for _, s := range m {
		if err := s.WriteCallRecord(rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

const (
	tokenPrefixLen = 10

	// startAllocRetries bounds correlation id allocation when two attempts to
	// the same number land in the same second.
	startAllocRetries = 100
)

// Tracker owns the per-call records. The primary map is keyed by correlation
// id; a secondary index resolves the provider's conversation uuid, populated
// at the one point the mapping becomes known (RecordCallCreated).
//
// Locking is per record: the store-level mutex only guards the maps, so a
// synchronous sink write for one call never blocks mutation of another.
type Tracker struct {
	mu             sync.RWMutex
	records        map[string]*entry
	byConversation map[string]string
	byCallUUID     map[string]string
	byRecording    map[string]string

	sink Sink
	log  *slog.Logger
	now  func() time.Time
}

type entry struct {
	mu  sync.Mutex
	rec *CallRecord
}

func New(sink Sink, log *slog.Logger) *Tracker {
	if sink == nil {
		sink = NopSink{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		records:        make(map[string]*entry),
		byConversation: make(map[string]string),
		byCallUUID:     make(map[string]string),
		byRecording:    make(map[string]string),
		sink:           sink,
		log:            log,
		now:            time.Now,
	}
}

// SetClock overrides the tracker clock. Intended for tests.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

// Start allocates a new record for an outbound attempt and returns its
// correlation id.
func (t *Tracker) Start(toNumber string) (string, error) {
	now := t.now()
	base := fmt.Sprintf("call_%d_%s", now.Unix(), toNumber)

	t.mu.Lock()
	correlationID := base
	for i := 2; ; i++ {
		if _, exists := t.records[correlationID]; !exists {
			break
		}
		if i > startAllocRetries {
			t.mu.Unlock()
			return "", fmt.Errorf("tracker: correlation id space exhausted for %s", base)
		}
		correlationID = fmt.Sprintf("%s_%d", base, i)
	}

	e := &entry{rec: &CallRecord{
		CorrelationID: correlationID,
		ToNumber:      toNumber,
		StartedAt:     now,
		Call:          CallInfo{Events: []CallEvent{}},
		Status:        StatusInitializing,
	}}
	t.records[correlationID] = e
	t.mu.Unlock()

	e.mu.Lock()
	t.persist(e)
	e.mu.Unlock()

	return correlationID, nil
}

// RecordAuthOutcome stores the branding auth leg. A nil response marks the
// leg failed. Unknown correlation ids are logged and ignored; the branding
// flow must survive a record that is already gone.
func (t *Tracker) RecordAuthOutcome(correlationID string, res *AuthResponse, requestID string) {
	e := t.lookup(correlationID)
	if e == nil {
		t.log.Warn("correlation id not found", "correlation_id", correlationID, "op", "record_auth_outcome")
		return
	}

	out := &AuthOutcome{
		Timestamp: t.now(),
		RequestID: requestID,
		Success:   res != nil && res.Token != "",
	}
	if res != nil {
		out.Token = SanitizeToken(res.Token)
		v := res.ExpiresIn
		out.TokenExpiresIn = &v
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec.Branding.Auth = out
	t.persist(e)
}

// RecordPushOutcome stores the branding push leg.
func (t *Tracker) RecordPushOutcome(correlationID string, success bool, response json.RawMessage, requestID string) {
	e := t.lookup(correlationID)
	if e == nil {
		t.log.Warn("correlation id not found", "correlation_id", correlationID, "op", "record_push_outcome")
		return
	}

	out := &PushOutcome{
		Timestamp: t.now(),
		RequestID: requestID,
		Success:   success,
		Response:  append(json.RawMessage(nil), response...),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec.Branding.Push = out
	t.persist(e)
}

// RecordCallCreated stores the provider call identifiers and installs the
// conversation uuid index entry. Webhooks arriving before this point cannot
// be resolved; that race is accepted.
func (t *Tracker) RecordCallCreated(correlationID string, res CallCreated) {
	t.mu.Lock()
	e, ok := t.records[correlationID]
	if !ok {
		t.mu.Unlock()
		t.log.Warn("correlation id not found", "correlation_id", correlationID, "op", "record_call_created")
		return
	}
	if res.ConversationUUID != "" {
		t.byConversation[res.ConversationUUID] = correlationID
	}
	if res.CallUUID != "" {
		t.byCallUUID[res.CallUUID] = correlationID
	}
	t.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec.Call.CallUUID = res.CallUUID
	e.rec.Call.ConversationUUID = res.ConversationUUID
	e.rec.Call.Status = res.Status
	e.rec.Call.Direction = res.Direction
	e.rec.Call.CreatedAt = t.now()
	if e.rec.Call.Events == nil {
		e.rec.Call.Events = []CallEvent{}
	}
	t.persist(e)
}

// RecordEvent appends a raw webhook payload to the record resolved through
// the conversation index. Duplicates are appended as-is. When the payload
// carries a status it overwrites the record status (last writer wins).
func (t *Tracker) RecordEvent(conversationUUID string, payload json.RawMessage) {
	e := t.lookupByConversation(conversationUUID)
	if e == nil {
		// An event can legitimately race ahead of RecordCallCreated.
		t.log.Warn("no correlation for conversation", "conversation_uuid", conversationUUID, "op", "record_event")
		return
	}

	var probe struct {
		Status string `json:"status"`
	}
	_ = json.Unmarshal(payload, &probe)

	eventType := probe.Status
	if eventType == "" {
		eventType = "unknown"
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec.Call.Events = append(e.rec.Call.Events, CallEvent{
		Timestamp: t.now(),
		Type:      eventType,
		Raw:       append(json.RawMessage(nil), payload...),
	})
	if probe.Status != "" {
		e.rec.Status = Status(probe.Status)
	}
	t.persist(e)
}

// SetStatus overwrites the record status for a conversation. Used by the IVR
// machine when the survey completes.
func (t *Tracker) SetStatus(conversationUUID string, status Status) {
	e := t.lookupByConversation(conversationUUID)
	if e == nil {
		t.log.Warn("no correlation for conversation", "conversation_uuid", conversationUUID, "op", "set_status")
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec.Status = status
	t.persist(e)
}

// MarkFailed marks a correlation's record failed when the call could not be
// created at all.
func (t *Tracker) MarkFailed(correlationID string) {
	e := t.lookup(correlationID)
	if e == nil {
		t.log.Warn("unknown correlation", "correlation_id", correlationID, "op", "mark_failed")
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec.Status = StatusFailed
	t.persist(e)
}

// RecordStepRecording appends a step recording entry to the record owning
// callUUID and indexes it by recording uuid for the artifact webhook.
func (t *Tracker) RecordStepRecording(callUUID string, sr StepRecording) {
	t.mu.Lock()
	correlationID, ok := t.byCallUUID[callUUID]
	var e *entry
	if ok {
		e = t.records[correlationID]
		if sr.RecordingUUID != "" {
			t.byRecording[sr.RecordingUUID] = correlationID
		}
	}
	t.mu.Unlock()

	if e == nil {
		t.log.Warn("no correlation for call uuid", "call_uuid", callUUID, "op", "record_step_recording")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec.Call.StepRecordings = append(e.rec.Call.StepRecordings, sr)
	t.persist(e)
}

// FindStepRecording resolves a provider recording uuid to the step recording
// that started it, if any. A miss means the artifact is a full-call
// recording.
func (t *Tracker) FindStepRecording(recordingUUID string) (StepRecording, bool) {
	t.mu.RLock()
	correlationID, ok := t.byRecording[recordingUUID]
	var e *entry
	if ok {
		e = t.records[correlationID]
	}
	t.mu.RUnlock()

	if e == nil {
		return StepRecording{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, sr := range e.rec.Call.StepRecordings {
		if sr.RecordingUUID == recordingUUID {
			return sr, true
		}
	}
	return StepRecording{}, false
}

// Get returns a snapshot of the record for a correlation id.
func (t *Tracker) Get(correlationID string) (CallRecord, bool) {
	e := t.lookup(correlationID)
	if e == nil {
		return CallRecord{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone(), true
}

// GetByConversation returns a snapshot of the record owning a conversation
// uuid. It resolves only after RecordCallCreated has installed the mapping.
func (t *Tracker) GetByConversation(conversationUUID string) (CallRecord, bool) {
	e := t.lookupByConversation(conversationUUID)
	if e == nil {
		return CallRecord{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone(), true
}

// List returns snapshots of every live record.
func (t *Tracker) List() []CallRecord {
	t.mu.RLock()
	entries := make([]*entry, 0, len(t.records))
	for _, e := range t.records {
		entries = append(entries, e)
	}
	t.mu.RUnlock()

	out := make([]CallRecord, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.rec.Clone())
		e.mu.Unlock()
	}
	return out
}

func (t *Tracker) lookup(correlationID string) *entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.records[correlationID]
}

func (t *Tracker) lookupByConversation(conversationUUID string) *entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	correlationID, ok := t.byConversation[conversationUUID]
	if !ok {
		return nil
	}
	return t.records[correlationID]
}

// persist writes a snapshot through the sink. Caller holds the entry lock, so
// the mutation is observable in the store only once the write returns.
func (t *Tracker) persist(e *entry) {
	if err := t.sink.WriteCallRecord(e.rec.Clone()); err != nil {
		t.log.Error("artifact write failed", "correlation_id", e.rec.CorrelationID, "err", err)
	}
}

// SanitizeToken keeps a 10-char prefix of a bearer token, enough to correlate
// against provider logs without persisting a usable secret.
func SanitizeToken(token string) string {
	if len(token) <= tokenPrefixLen {
		return token
	}
	return token[:tokenPrefixLen] + "..."
}
