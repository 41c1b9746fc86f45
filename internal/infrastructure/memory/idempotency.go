package memory

import (
	"context"
	"sync"
	"time"
)

type idempotencyEntry struct {
	result    []byte
	expiresAt time.Time
}

// IdempotencyStore is the single-process counterpart of the Redis store.
type IdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]idempotencyEntry
	now     func() time.Time
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{
		entries: make(map[string]idempotencyEntry),
		now:     time.Now,
	}
}

func (s *IdempotencyStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if entry, ok := s.entries[key]; ok && now.Before(entry.expiresAt) {
		return false, entry.result, nil
	}
	s.entries[key] = idempotencyEntry{expiresAt: now.Add(ttl)}
	return true, nil, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, key string, result []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(result))
	copy(stored, result)
	s.entries[key] = idempotencyEntry{result: stored, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}
