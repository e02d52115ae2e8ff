package archive

import (
	"context"
	"sync"

	"surveydialer/internal/tracker"
)

// MemoryRepository is an in-memory Repository for tests and local runs.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]tracker.CallRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]tracker.CallRecord)}
}

func (r *MemoryRepository) SaveCallRecord(_ context.Context, rec tracker.CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.CorrelationID] = rec
	return nil
}

func (r *MemoryRepository) Get(correlationID string) (tracker.CallRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[correlationID]
	return rec, ok
}

func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
