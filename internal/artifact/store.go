// Package artifact persists per-call JSON snapshots and raw webhook payloads
// under a flat directory layout:
//
//	<dir>/<correlation_id>.json          current snapshot per call attempt
//	<dir>/number_<to>_latest.json        latest snapshot per destination
//	<dir>/responses/survey_<conv>.json   survey answers per conversation
//	<dir>/webhooks/<kind>_<id>.json     raw webhook payloads, JSONL appended
//
// The store is a pure side-effecting sink; callers decide what and when to
// write.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"surveydialer/internal/tracker"
)

type Store struct {
	dir string

	// mu serializes writes per path; snapshots for different calls land on
	// different files and do not contend.
	mu sync.Map
}

func NewStore(dir string) (*Store, error) {
	for _, d := range []string{dir, filepath.Join(dir, "responses"), filepath.Join(dir, "webhooks")} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("artifact: create dir %s: %w", d, err)
		}
	}
	return &Store{dir: dir}, nil
}

// WriteCallRecord overwrites the snapshot files for one call attempt. It
// implements tracker.Sink; the record arrives already sanitized.
func (s *Store) WriteCallRecord(rec tracker.CallRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: marshal call record: %w", err)
	}

	primary := filepath.Join(s.dir, safeName(rec.CorrelationID)+".json")
	if err := s.writeFile(primary, data); err != nil {
		return err
	}

	latest := filepath.Join(s.dir, "number_"+safeName(rec.ToNumber)+"_latest.json")
	return s.writeFile(latest, data)
}

// WriteSurveyResponses overwrites the response file for one conversation.
func (s *Store) WriteSurveyResponses(conversationUUID string, responses map[string]string) error {
	data, err := json.MarshalIndent(responses, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: marshal survey responses: %w", err)
	}
	path := filepath.Join(s.dir, "responses", "survey_"+safeName(conversationUUID)+".json")
	return s.writeFile(path, data)
}

// AppendWebhook appends one raw payload to the JSONL file for kind/id.
// Payloads are kept verbatim for cross-system diagnosis.
func (s *Store) AppendWebhook(kind, id string, payload json.RawMessage) error {
	path := filepath.Join(s.dir, "webhooks", safeName(kind)+"_"+safeName(id)+".json")

	lock := s.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("artifact: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("artifact: append %s: %w", path, err)
	}
	return nil
}

func (s *Store) writeFile(path string, data []byte) error {
	lock := s.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("artifact: write %s: %w", path, err)
	}
	return nil
}

func (s *Store) pathLock(path string) *sync.Mutex {
	v, _ := s.mu.LoadOrStore(path, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// safeName strips path separators and characters that are awkward in file
// names (phone numbers may carry a leading '+').
func safeName(v string) string {
	if v == "" {
		return "unknown"
	}
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_", "+", "", ":", "-", " ", "_")
	return r.Replace(v)
}
