package payment

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/sponsor-api/internal/common"
)

// ReplayGuard drops notifications whose exact body was already processed.
// A nil client disables the guard.
type ReplayGuard struct {
	Client *redis.Client
	TTL    time.Duration
}

// ReplayKey identifies one delivery by provider and body digest.
func ReplayKey(provider string, body []byte) string {
	return "sponsor:wh:" + provider + ":" + common.Sha256Hex(string(body))
}

// Acquire claims key. It reports false when the delivery was seen before.
func (g ReplayGuard) Acquire(ctx context.Context, key string) (bool, error) {
	if g.Client == nil {
		return true, nil
	}
	ttl := g.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return g.Client.SetNX(ctx, key, "1", ttl).Result()
}

// Release forgets key so the provider's retry is processed again.
func (g ReplayGuard) Release(ctx context.Context, key string) error {
	if g.Client == nil {
		return nil
	}
	return g.Client.Del(ctx, key).Err()
}
