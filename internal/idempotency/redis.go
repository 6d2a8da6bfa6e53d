package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker keeps locks in Redis with SET NX PX.
type RedisLocker struct {
	rdb redis.UniversalClient
}

// NewRedisLocker returns a locker backed by rdb.
func NewRedisLocker(rdb redis.UniversalClient) *RedisLocker {
	if rdb == nil {
		panic("idempotency: redis client cannot be nil")
	}
	return &RedisLocker{rdb: rdb}
}

// Acquire implements Locker.
func (r *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	token := newToken()
	ok, err := r.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis SETNX error: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &Lease{Key: key, token: token, release: r.release}, nil
}

func (r *RedisLocker) release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, r.rdb, []string{key}, token).Err(); err != nil {
		return fmt.Errorf("redis release error: %w", err)
	}
	return nil
}
