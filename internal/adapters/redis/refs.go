// Package redis holds the Redis-backed pieces: payment reference claims and
// the rate-limit counter backend.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// refTTL bounds how long a settled reference stays claimed. Paystack
// references are unique per charge, so a long window is enough to absorb
// webhook replays and double-submits.
const refTTL = 30 * 24 * time.Hour

// RefChecker claims payment references with SETNX so each external charge
// settles at most once. Claims for flows that do not settle are released so
// the charge can be retried.
type RefChecker struct {
	cache *Cache
}

func NewRefChecker(cache *Cache) *RefChecker {
	return &RefChecker{cache: cache}
}

// Claim returns false when the reference was already claimed.
func (r *RefChecker) Claim(ctx context.Context, ref string) (bool, error) {
	return r.cache.client.SetNX(ctx, "ref:"+ref, "1", refTTL).Result()
}

func (r *RefChecker) Release(ctx context.Context, ref string) error {
	return r.cache.client.Del(ctx, "ref:"+ref).Err()
}
