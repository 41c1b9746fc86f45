package redis

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	idempotencyPrefix = "idempotency:"
	pendingMarker     = "\x00pending"
)

// IdempotencyStore shares submission keys across bidding-service instances.
// A claimed key holds a pending marker until the outcome is stored.
type IdempotencyStore struct {
	client *redis.Client
}

func NewIdempotencyStore(client *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

func (s *IdempotencyStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, []byte, error) {
	claimed, err := s.client.SetNX(ctx, idempotencyPrefix+key, pendingMarker, ttl).Result()
	if err != nil {
		return false, nil, err
	}
	if claimed {
		return true, nil, nil
	}

	stored, err := s.client.Get(ctx, idempotencyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Expired between the two calls; try once more.
			claimed, err := s.client.SetNX(ctx, idempotencyPrefix+key, pendingMarker, ttl).Result()
			return claimed, nil, err
		}
		return false, nil, err
	}
	if string(stored) == pendingMarker {
		return false, nil, nil
	}
	return false, stored, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, key string, result []byte, ttl time.Duration) error {
	return s.client.Set(ctx, idempotencyPrefix+key, result, ttl).Err()
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, idempotencyPrefix+key).Err()
}
