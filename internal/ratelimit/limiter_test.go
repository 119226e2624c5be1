package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

func TestSlidingWindowAllow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	limiter := SlidingWindow{Client: client, Prefix: "test:"}

	ctx := context.Background()
	window := 2 * time.Second
	max := 2

	for i := 0; i < max; i++ {
		allowed, remaining, _, err := limiter.Allow(ctx, "key", window, max)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !allowed {
			t.Fatalf("expected request %d to be allowed", i)
		}
		if remaining != max-(i+1) {
			t.Fatalf("unexpected remaining: %d", remaining)
		}
	}

	allowed, remaining, _, err := limiter.Allow(ctx, "key", window, max)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if allowed || remaining != 0 {
		t.Fatalf("expected third request rejected with 0 remaining, got %v/%d", allowed, remaining)
	}

	mr.FastForward(window)

	allowed, _, _, err = limiter.Allow(ctx, "key", window, max)
	if err != nil {
		t.Fatalf("allow after window: %v", err)
	}
	if !allowed {
		t.Fatal("expected request after window to be allowed")
	}
}

func TestFixedWindowAllow(t *testing.T) {
	limiter := FixedWindow{Store: memory.NewStore()}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, remaining, reset, err := limiter.Allow(ctx, "pf:1.2.3.4", time.Minute, 3)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !allowed || remaining != 2-i {
			t.Fatalf("request %d: allowed=%v remaining=%d", i, allowed, remaining)
		}
		if reset.Before(time.Now()) {
			t.Fatalf("reset in the past: %v", reset)
		}
	}
	allowed, _, _, err := limiter.Allow(ctx, "pf:1.2.3.4", time.Minute, 3)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if allowed {
		t.Fatal("expected fourth request to be rejected")
	}

	allowed, _, _, _ = limiter.Allow(ctx, "pf:5.6.7.8", time.Minute, 3)
	if !allowed {
		t.Fatal("expected other key to be allowed")
	}
}

func TestUnconfiguredLimitersAllow(t *testing.T) {
	for _, l := range []Limiter{SlidingWindow{}, FixedWindow{}} {
		allowed, _, _, err := l.Allow(context.Background(), "k", time.Second, 1)
		if err != nil || !allowed {
			t.Fatalf("%T: expected pass-through, got %v %v", l, allowed, err)
		}
	}
}
