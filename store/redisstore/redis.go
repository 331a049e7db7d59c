// Package redisstore persists token slots in Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/versini-org/auth-client/store"
)

// Backend is a Redis-backed [store.BatchBackend].
//
// Multi-slot writes go through a MULTI/EXEC pipeline so a reader never observes a
// rotated access token paired with the previous refresh token.
type Backend struct {
	redis redis.UniversalClient
	ttl   time.Duration
}

// New creates a [Backend]. A positive ttl bounds how long a slot survives without
// being rewritten; zero keeps slots until they are deleted.
func New(client redis.UniversalClient, ttl time.Duration) *Backend {
	if ttl < 0 {
		ttl = 0
	}
	return &Backend{
		redis: client,
		ttl:   ttl,
	}
}

func (b *Backend) Get(ctx context.Context, key string) (string, error) {
	v, err := b.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", store.ErrBackendUnavailable, err)
	}
	return v, nil
}

func (b *Backend) Set(ctx context.Context, key, value string) error {
	if err := b.redis.Set(ctx, key, value, b.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrBackendUnavailable, err)
	}
	return nil
}

func (b *Backend) SetMany(ctx context.Context, values map[string]string) error {
	_, err := b.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, k, v, b.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrBackendUnavailable, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := b.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrBackendUnavailable, err)
	}
	return nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (b *Backend) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := b.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", store.ErrBackendUnavailable, err)
	}
	return time.Since(start), nil
}
