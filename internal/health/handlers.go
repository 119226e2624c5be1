package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips the readiness flag; main clears it when shutdown begins so
// load balancers drain the instance first.
func SetReady(v bool) { ready.Store(v) }

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingStore(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker      Checker
	StoreTimeout time.Duration
	RedisTimeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on the order store and Redis probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Checker == nil {
		http.Error(w, "dependencies unavailable", http.StatusServiceUnavailable)
		return
	}
	ctx := r.Context()
	status := map[string]string{"store": "ok", "redis": "ok"}
	if err := h.Checker.PingStore(ctx, timeoutOr(h.StoreTimeout, 500*time.Millisecond)); err != nil {
		status["store"] = err.Error()
	}
	if err := h.Checker.PingRedis(ctx, timeoutOr(h.RedisTimeout, 300*time.Millisecond)); err != nil {
		status["redis"] = err.Error()
	}
	if !ready.Load() {
		status["shutdown"] = "draining"
	}

	code := http.StatusOK
	if status["store"] != "ok" || status["redis"] != "ok" || !ready.Load() {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

func timeoutOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
