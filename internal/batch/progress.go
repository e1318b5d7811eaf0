package batch

import (
	"sync"
	"time"
)

// Progress is the live, pollable state of one executing batch. Records are
// in-memory only and lost on restart.
type Progress struct {
	BatchID      string      `json:"batch_id"`
	BatchIndex   int         `json:"batch_index"`
	TotalBatches int         `json:"total_batches"`
	TotalCount   int         `json:"total_count"`
	CurrentIndex int         `json:"current_index"`
	CurrentItem  *Item       `json:"current_item,omitempty"`
	Percent      float64     `json:"progress"`
	Status       BatchStatus `json:"status"`
	Succeeded    int         `json:"succeeded_count"`
	Failed       int         `json:"failed_count"`
	Skipped      int         `json:"skipped_count"`
	StartedAt    time.Time   `json:"start_time"`
	EndedAt      time.Time   `json:"end_time,omitzero"`
	Message      string      `json:"message"`
}

// ProgressStore holds live batch progress records keyed by batch id. It is an
// injectable value, not a package singleton, so independent managers can be
// tested in isolation.
type ProgressStore struct {
	mu      sync.RWMutex
	records map[string]Progress
}

// NewProgressStore creates an empty store.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{records: make(map[string]Progress)}
}

// Put replaces the record for rec.BatchID. Records are replaced wholesale so
// readers never observe a half-updated aggregate.
func (s *ProgressStore) Put(rec Progress) {
	s.mu.Lock()
	s.records[rec.BatchID] = rec
	s.mu.Unlock()
}

// Get returns the record for a batch id; ok is false for unknown ids.
func (s *ProgressStore) Get(batchID string) (Progress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[batchID]
	return rec, ok
}

// Clear drops the record for a batch id.
func (s *ProgressStore) Clear(batchID string) {
	s.mu.Lock()
	delete(s.records, batchID)
	s.mu.Unlock()
}
