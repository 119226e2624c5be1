package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sponsor-api/internal/lock"
)

func newLocker(t *testing.T) (lock.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond}, mr
}

func TestWithLockSerializesSameOrder(t *testing.T) {
	locker, mr := newLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	key := lock.OrderKey(" QZ-ABCD1234 ")
	require.Equal(t, "sponsor:lock:order:QZ-ABCD1234", key)

	var (
		mu     sync.Mutex
		inside int
		peak   int
		wg     sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(ctx, key, time.Second, func(context.Context) error {
				mu.Lock()
				inside++
				if inside > peak {
					peak = inside
				}
				mu.Unlock()
				time.Sleep(10 * time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("with lock: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, peak)
	require.False(t, mr.Exists(key))
}

func TestWithLockReleasesOnError(t *testing.T) {
	locker, mr := newLocker(t)
	boom := errors.New("boom")
	err := locker.WithLock(context.Background(), lock.OrderKey("QZ-1"), time.Second, func(context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists(lock.OrderKey("QZ-1")))
}

func TestWithLockHonoursContext(t *testing.T) {
	locker, mr := newLocker(t)
	key := lock.OrderKey("QZ-HELD0001")
	require.NoError(t, mr.Set(key, "someone-else"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	called := false
	err := locker.WithLock(ctx, key, time.Second, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, lock.ErrNotHeld)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, called)

	// A foreign holder keeps its lock.
	got, err := mr.Get(key)
	require.NoError(t, err)
	require.Equal(t, "someone-else", got)
}

func TestWithLockWithoutRedis(t *testing.T) {
	err := lock.Locker{}.WithLock(context.Background(), "k", 0, func(context.Context) error { return nil })
	if !errors.Is(err, lock.ErrNoRedis) {
		t.Fatalf("expected ErrNoRedis, got %v", err)
	}
}
