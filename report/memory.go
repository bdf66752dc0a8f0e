package report

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/taskmesh/core"
)

// MemoryStore is a volatile Store keeping encoded reports in a process
// local map. It is safe for concurrent access and best suited for tests or
// ephemeral runs. Reports are stored encoded so callers never share state
// with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string][]byte
	order   []string
}

// NewMemoryStore constructs an empty in-memory report store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reports: make(map[string][]byte)}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, r *core.RunReport) error {
	b, err := encode(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reports[r.RunID]; !ok {
		s.order = append(s.order, r.RunID)
	}
	s.reports[r.RunID] = b

	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, runID string) (*core.RunReport, error) {
	s.mu.RLock()
	b, ok := s.reports[runID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}

	return decode(b)
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.order))
	for _, id := range s.order {
		r, err := decode(s.reports[id])
		if err != nil {
			return nil, err
		}
		out = append(out, Summarize(r))
	}

	slices.SortStableFunc(out, func(a, b Summary) int { return a.StartedAt.Compare(b.StartedAt) })

	return out, nil
}

// Len returns the number of stored reports.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.reports)
}

