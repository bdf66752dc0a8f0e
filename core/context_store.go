package core

import (
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"

	"github.com/tiendc/go-deepcopy"
)

// ContextStore is the run scoped key/value map shared by every node of a run,
// regardless of tree depth or concurrency. It is safe for concurrent use;
// the last writer wins and no compare-and-swap primitive is offered.
type ContextStore struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewContextStore creates a store seeded with a copy of initial (which may be nil).
func NewContextStore(initial map[string]any) *ContextStore {
	data := make(map[string]any, len(initial))
	maps.Copy(data, initial)

	return &ContextStore{data: data}
}

// Get returns the value for key or ErrKeyNotFound.
func (s *ContextStore) Get(key string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}

	return v, nil
}

// GetOr returns the value for key or def when the key is absent.
func (s *ContextStore) GetOr(key string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.data[key]; ok {
		return v
	}

	return def
}

// Lookup returns the value and an existence flag.
func (s *ContextStore) Lookup(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]

	return v, ok
}

// Put upserts key.
func (s *ContextStore) Put(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *ContextStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
}

// Keys returns a lazy sequence over the keys present when Keys was called,
// in sorted order. Mutations after the call are not reflected.
func (s *ContextStore) Keys() iter.Seq[string] {
	s.mu.RLock()
	keys := slices.Sorted(maps.Keys(s.data))
	s.mu.RUnlock()

	return slices.Values(keys)
}

// Len returns the number of keys.
func (s *ContextStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data)
}

// Snapshot returns a shallow copy of the current contents.
func (s *ContextStore) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Clone(s.data)
}

// DeepSnapshot returns a deep copy of the current contents, falling back to
// a shallow copy for values that cannot be deep copied.
func (s *ContextStore) DeepSnapshot() map[string]any {
	snap := s.Snapshot()

	out := make(map[string]any, len(snap))
	if err := deepcopy.Copy(&out, snap); err != nil {
		return snap
	}

	return out
}
