package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process CounterStore used in tests and
// single-instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	fixed   map[string]*fixedCounter
	sliding map[string][]time.Time
	now     func() time.Time
}

type fixedCounter struct {
	count   int64
	expires time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		fixed:   make(map[string]*fixedCounter),
		sliding: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// WithClock substitutes the time source, for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// FixedCount implements CounterStore.
func (s *MemoryStore) FixedCount(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.fixed[key]
	if !ok || s.now().After(c.expires) {
		return 0, nil
	}
	return c.count, nil
}

// FixedIncr implements CounterStore.
func (s *MemoryStore) FixedIncr(_ context.Context, key string, expiry time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	c, ok := s.fixed[key]
	if !ok || now.After(c.expires) {
		c = &fixedCounter{expires: now.Add(expiry)}
		s.fixed[key] = c
	}
	c.count++
	return c.count, nil
}

// SlidingCount implements CounterStore.
func (s *MemoryStore) SlidingCount(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.prune(key, window))), nil
}

// SlidingAdd implements CounterStore.
func (s *MemoryStore) SlidingAdd(_ context.Context, key string, window time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sliding[key] = append(s.prune(key, window), s.now())
	return nil
}

// prune drops events older than the window. Caller holds the lock.
func (s *MemoryStore) prune(key string, window time.Duration) []time.Time {
	cutoff := s.now().Add(-window)
	events := s.sliding[key]
	kept := events[:0]
	for _, t := range events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.sliding[key] = kept
	return kept
}
