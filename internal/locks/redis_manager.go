package locks

import (
	"context"
	"time"
)

// RedisLockClient is the subset of the Redis client used for distributed
// coordination.
type RedisLockClient interface {
	AcquireLock(ctx context.Context, key string, expiration time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// RedisManager serializes per-key work across instances using Redis SETNX
// locks. Acquisition polls with a short backoff; the lock expiration bounds
// how long a crashed holder can block others.
type RedisManager struct {
	redis      RedisLockClient
	expiration time.Duration
	retryDelay time.Duration
}

// NewRedisManager creates a Redis-backed lock manager.
func NewRedisManager(client RedisLockClient) *RedisManager {
	return &RedisManager{
		redis:      client,
		expiration: 30 * time.Second,
		retryDelay: 50 * time.Millisecond,
	}
}

// WithLock polls until the key's lock is acquired or ctx is done, runs fn,
// and releases the lock.
func (m *RedisManager) WithLock(ctx context.Context, key string, fn func() error) error {
	for {
		acquired, err := m.redis.AcquireLock(ctx, key, m.expiration)
		if err != nil {
			return err
		}
		if acquired {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.retryDelay):
		}
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.redis.ReleaseLock(releaseCtx, key)
	}()

	return fn()
}

// Close implements Manager.
func (m *RedisManager) Close() error {
	return nil
}
