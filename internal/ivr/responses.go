package ivr

import (
	"log/slog"
	"sync"
)

// ResponseSink persists the response set for a conversation after each
// change. Best-effort: sink errors are logged, never propagated.
type ResponseSink interface {
	WriteSurveyResponses(conversationUUID string, responses map[string]string) error
}

type nopResponseSink struct{}

func (nopResponseSink) WriteSurveyResponses(string, map[string]string) error { return nil }

// SurveyStore holds the per-conversation answer sets. Answers are
// first-writer-wins and the set becomes read-only once finalized, so a
// duplicated delivery can never rewrite history.
type SurveyStore struct {
	mu        sync.Mutex
	responses map[string]map[string]string
	finalized map[string]bool

	sink ResponseSink
	log  *slog.Logger
}

func NewSurveyStore(sink ResponseSink, log *slog.Logger) *SurveyStore {
	if sink == nil {
		sink = nopResponseSink{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &SurveyStore{
		responses: make(map[string]map[string]string),
		finalized: make(map[string]bool),
		sink:      sink,
		log:       log,
	}
}

// Get returns a copy of the answers recorded so far for a conversation.
func (s *SurveyStore) Get(conversationUUID string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.responses[conversationUUID]))
	for k, v := range s.responses[conversationUUID] {
		out[k] = v
	}
	return out
}

// Answer records one answer. It reports whether the set changed: false when
// the key already holds a value or the conversation is finalized.
func (s *SurveyStore) Answer(conversationUUID, key, value string) bool {
	s.mu.Lock()
	if s.finalized[conversationUUID] {
		s.mu.Unlock()
		return false
	}
	set, ok := s.responses[conversationUUID]
	if !ok {
		set = make(map[string]string)
		s.responses[conversationUUID] = set
	}
	if _, exists := set[key]; exists {
		s.mu.Unlock()
		return false
	}
	set[key] = value
	snapshot := make(map[string]string, len(set))
	for k, v := range set {
		snapshot[k] = v
	}
	s.mu.Unlock()

	if err := s.sink.WriteSurveyResponses(conversationUUID, snapshot); err != nil {
		s.log.Error("survey responses write failed", "conversation_uuid", conversationUUID, "err", err)
	}
	return true
}

// Finalize freezes a conversation's answers once all steps are done.
func (s *SurveyStore) Finalize(conversationUUID string) {
	s.mu.Lock()
	s.finalized[conversationUUID] = true
	s.mu.Unlock()
}

// All returns a copy of every conversation's answers, for reporting.
func (s *SurveyStore) All() map[string]map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]map[string]string, len(s.responses))
	for conv, set := range s.responses {
		cp := make(map[string]string, len(set))
		for k, v := range set {
			cp[k] = v
		}
		out[conv] = cp
	}
	return out
}

// Finalized reports whether a conversation completed every step.
func (s *SurveyStore) Finalized(conversationUUID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized[conversationUUID]
}
