package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheKey holds the rendered catalogue response.
const DefaultCacheKey = "sponsor:catalogue"

// Cache stores rendered catalogue payloads in Redis. A nil cache or client is a
// permanent miss.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	key    string
}

// NewCache constructs a cache for key. An empty key uses DefaultCacheKey.
func NewCache(client *redis.Client, ttl time.Duration, key string) *Cache {
	if key == "" {
		key = DefaultCacheKey
	}
	return &Cache{client: client, ttl: ttl, key: key}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Get decodes the cached result. It reports whether an entry existed.
func (c *Cache) Get(ctx context.Context) (Result, bool, error) {
	var out Result
	if !c.enabled() {
		return out, false, nil
	}
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return out, false, nil
		}
		return out, false, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, false, err
	}
	return out, true, nil
}

// Set stores res with the configured TTL.
func (c *Cache) Set(ctx context.Context, res Result) error {
	if !c.enabled() {
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, data, c.ttl).Err()
}

// Invalidate drops the cached entry so the next read goes to the sheets.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, c.key).Err()
}
