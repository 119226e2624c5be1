package health

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by sheet.Book.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probes checks the order workbook and, when configured, Redis. A nil Redis
// client counts as healthy since Redis only backs optional features.
type Probes struct {
	Store Pinger
	Redis *redis.Client
}

// PingStore probes the order workbook.
func (p Probes) PingStore(ctx context.Context, timeout time.Duration) error {
	if p.Store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Store.Ping(ctx)
}

// PingRedis probes Redis.
func (p Probes) PingRedis(ctx context.Context, timeout time.Duration) error {
	if p.Redis == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Redis.Ping(ctx).Err()
}
