package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries for the life of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	backoff map[string]time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		backoff: make(map[string]time.Time),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, e Entry) error {
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.entries, k)
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) BackOff(_ context.Context, key string, until time.Time) error {
	s.mu.Lock()
	s.backoff[key] = until
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) IsBackedOff(_ context.Context, key string, now time.Time) (time.Time, bool, error) {
	s.mu.RLock()
	until, ok := s.backoff[key]
	s.mu.RUnlock()
	if !ok || !now.Before(until) {
		return time.Time{}, false, nil
	}
	return until, true, nil
}
