package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONLRepo appends events to a single JSONL file, one event per line.
// It is the production repository; the trail survives restarts and can be
// inspected with standard line tools.
type JSONLRepo struct {
	path string
	mu   sync.Mutex
}

func NewJSONLRepo(dir string) (*JSONLRepo, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create dir %s: %w", dir, err)
	}
	return &JSONLRepo{path: filepath.Join(dir, "operator_actions.jsonl")}, nil
}

func (r *JSONLRepo) Append(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: marshal event: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", r.path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: append event: %w", err)
	}
	return nil
}
