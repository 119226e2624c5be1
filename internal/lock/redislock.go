// Package lock serializes settlement work per order across API and worker
// processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrNoRedis  = errors.New("lock: redis client not configured")
	ErrNotHeld  = errors.New("lock: not acquired")
	defaultTTL  = 30 * time.Second
	defaultWait = 50 * time.Millisecond
)

// compare-and-delete, so an expired holder never frees a lock someone else
// has since taken.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// OrderKey is the lock key for one order.
func OrderKey(orderID string) string {
	return "sponsor:lock:order:" + strings.TrimSpace(orderID)
}

// Locker is a SETNX lock with a random owner token.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
}

// WithLock runs fn while key is held. It polls until the lock is free or ctx
// ends; the lock is released whatever fn returns.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return ErrNoRedis
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	token, err := l.acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer l.release(key, token)
	return fn(ctx)
}

func (l Locker) acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	wait := l.RetryBackoff
	if wait <= 0 {
		wait = defaultWait
	}
	ticker := time.NewTicker(wait)
	defer ticker.Stop()
	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		switch {
		case err != nil && ctx.Err() != nil:
			return "", fmt.Errorf("%w: %s: %w", ErrNotHeld, key, ctx.Err())
		case err != nil:
			return "", fmt.Errorf("lock %s: %w", key, err)
		case ok:
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %s: %w", ErrNotHeld, key, ctx.Err())
		case <-ticker.C:
		}
	}
}

// release runs detached from the caller's context, which may already be done.
func (l Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = releaseScript.Run(ctx, l.R, []string{key}, token).Err()
}
