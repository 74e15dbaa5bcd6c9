package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/BaSui01/crewflow/workflow"
)

// MemoryStore stores run records in process memory.
type MemoryStore struct {
	records map[string]*workflow.RunRecord
	mu      sync.RWMutex
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*workflow.RunRecord),
	}
}

// Save stores a copy of rec, replacing any earlier record with the same run ID.
func (s *MemoryStore) Save(_ context.Context, rec *workflow.RunRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.records[rec.RunID] = cloneRecord(rec)
	return nil
}

// Get retrieves a run record by ID
func (s *MemoryStore) Get(_ context.Context, runID string) (*workflow.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	rec, ok := s.records[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// ListByWorkflow returns the runs of one workflow
func (s *MemoryStore) ListByWorkflow(_ context.Context, name string, limit int) ([]*workflow.RunRecord, error) {
	return s.filter(limit, func(r *workflow.RunRecord) bool { return r.Workflow == name })
}

// ListByStatus returns runs with a specific status
func (s *MemoryStore) ListByStatus(_ context.Context, status workflow.Status, limit int) ([]*workflow.RunRecord, error) {
	return s.filter(limit, func(r *workflow.RunRecord) bool { return r.Status == status })
}

// ListByTimeRange returns runs that started within [start, end].
func (s *MemoryStore) ListByTimeRange(_ context.Context, start, end time.Time) ([]*workflow.RunRecord, error) {
	return s.filter(0, func(r *workflow.RunRecord) bool {
		return !r.StartTime.Before(start) && !r.StartTime.After(end)
	})
}

// Len 返回已存储的记录数
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close 关闭存储，之后的读写都返回 ErrStoreClosed
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) filter(limit int, match func(*workflow.RunRecord) bool) ([]*workflow.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	result := make([]*workflow.RunRecord, 0)
	for _, rec := range s.records {
		if match(rec) {
			result = append(result, cloneRecord(rec))
		}
	}
	slices.SortFunc(result, newestFirst)
	return applyLimit(result, limit), nil
}
