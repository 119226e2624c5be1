package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

// Locker serializes work per key; lock.Locker satisfies it.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// SubscribeWorker executes subscribe tasks.
type SubscribeWorker struct {
	Client  *AcyClient
	Locker  Locker
	LockTTL time.Duration
}

// ProcessTask implements asynq.Handler. Malformed payloads and a missing
// mailing configuration are not retried.
func (w SubscribeWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if w.Client == nil {
		return fmt.Errorf("mailing worker: client not configured: %w", asynq.SkipRetry)
	}
	var sub Subscriber
	if err := json.Unmarshal(t.Payload(), &sub); err != nil {
		return fmt.Errorf("mailing worker: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	email := strings.ToLower(strings.TrimSpace(sub.Email))
	if email == "" {
		return nil
	}
	run := func(ctx context.Context) error {
		err := w.Client.Subscribe(ctx, sub)
		if errors.Is(err, ErrNotConfigured) {
			return fmt.Errorf("mailing worker: %v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	if w.Locker == nil {
		return run(ctx)
	}
	ttl := w.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return w.Locker.WithLock(ctx, "sponsor:lock:mailing:"+email, ttl, run)
}

// Register mounts the worker on mux.
func (w SubscribeWorker) Register(mux *asynq.ServeMux) {
	mux.Handle(TaskSubscribe, w)
}
