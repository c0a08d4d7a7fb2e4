package ratelimit

import (
	"context"
	"time"

	redisadapter "github.com/unihub-exe/unihub-core/internal/adapters/redis"
)

// RateLimiter is a fixed-window counter in Redis. Allow returns false when
// the backend errors.
type RateLimiter struct {
	redis *redisadapter.Cache
}

func NewRateLimiter(redis *redisadapter.Cache) *RateLimiter {
	return &RateLimiter{redis: redis}
}

func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) bool {
	fullKey := "rl:" + key

	pipe := rl.redis.Client().Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, period)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return false
	}

	return incr.Val() <= int64(rate)
}
