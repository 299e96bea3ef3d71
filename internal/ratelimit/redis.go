package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter stores one key per identity that lives for exactly one
// cooldown. SET NX is the atomic check-and-record; the key's remaining TTL is
// the retry-after.
type RedisLimiter struct {
	rdb      redis.Cmdable
	prefix   string
	cooldown time.Duration
	now      func() time.Time
}

type RedisOption func(*RedisLimiter)

func WithKeyPrefix(prefix string) RedisOption {
	return func(l *RedisLimiter) { l.prefix = strings.Trim(prefix, ":") }
}

func NewRedisLimiter(rdb redis.Cmdable, cooldown time.Duration, opts ...RedisOption) *RedisLimiter {
	l := &RedisLimiter{
		rdb:      rdb,
		prefix:   "pixelgrid:cooldown",
		cooldown: cooldown,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Reserve implements Limiter.
func (l *RedisLimiter) Reserve(ctx context.Context, key string) (Decision, error) {
	k := l.prefix + ":" + key

	// Two rounds cover the key expiring between SET NX and PTTL.
	for range 2 {
		ok, err := l.rdb.SetNX(ctx, k, l.now().UnixMilli(), l.cooldown).Result()
		if err != nil {
			return Decision{}, fmt.Errorf("reserve %s: %w", key, err)
		}
		if ok {
			return Decision{Allowed: true}, nil
		}

		ttl, err := l.rdb.PTTL(ctx, k).Result()
		if err != nil {
			return Decision{}, fmt.Errorf("reserve %s ttl: %w", key, err)
		}
		if ttl > 0 {
			return Decision{RetryAfter: ttl}, nil
		}
		if ttl == -1 {
			// Key without expiry; should not happen, but never let it pin a user forever.
			if err := l.rdb.PExpire(ctx, k, l.cooldown).Err(); err != nil {
				return Decision{}, fmt.Errorf("reserve %s expire: %w", key, err)
			}
			return Decision{RetryAfter: l.cooldown}, nil
		}
	}
	return Decision{RetryAfter: l.cooldown}, nil
}
