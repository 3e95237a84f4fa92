package redis

import (
	"context"
	"errors"
	"time"

	"github.com/planpage/server/internal/port/outbound"
	"github.com/redis/go-redis/v9"
)

// cache implements outbound.CachePort on a Redis client.
type cache struct {
	client *redis.Client
	prefix string
}

// NewCache creates a cache adapter that namespaces every key with prefix.
func NewCache(client *redis.Client, prefix string) outbound.CachePort {
	return &cache{client: client, prefix: prefix}
}

func (c *cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, outbound.ErrCacheMiss
		}
		return nil, err
	}
	return val, nil
}

func (c *cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, value, ttl).Err()
}

func (c *cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}

func (c *cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.prefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Compile-time check
var _ outbound.CachePort = (*cache)(nil)
