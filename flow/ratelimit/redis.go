package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore is the shared CounterStore for multi-instance deployments.
// Fixed windows are plain counters with expiry; sliding windows are sorted
// sets scored by event time.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// FixedCount implements CounterStore.
func (s *RedisStore) FixedCount(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	return n, nil
}

// FixedIncr implements CounterStore. The expiry is attached when the
// counter is created so the window resets with the key.
func (s *RedisStore) FixedIncr(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	if n == 1 {
		if err := s.client.Expire(ctx, key, expiry).Err(); err != nil {
			return n, fmt.Errorf("redis expire %s: %w", key, err)
		}
	}
	return n, nil
}

// SlidingCount implements CounterStore.
func (s *RedisStore) SlidingCount(ctx context.Context, key string, window time.Duration) (int64, error) {
	cutoff := time.Now().Add(-window).UnixNano()
	pipe := s.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", cutoff))
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis sliding count %s: %w", key, err)
	}
	return card.Val(), nil
}

// SlidingAdd implements CounterStore. The whole set expires one window
// after the newest event so idle keys disappear.
func (s *RedisStore) SlidingAdd(ctx context.Context, key string, window time.Duration) error {
	now := time.Now()
	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis sliding add %s: %w", key, err)
	}
	return nil
}
