// Package resilience guards outbound calls to payment providers and the
// mailing list. Calls are never retried; a breaker stops sending traffic to a
// dependency that keeps failing and reports its state to Prometheus.
package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned while a dependency's breaker is open.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is a breaker position.
type State int

const (
	Closed State = iota
	Open
	// HalfOpen lets one probe through after the cool-off.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	}
	return "unknown"
}

func (s State) gauge() float64 {
	switch s {
	case Open:
		return 1
	case HalfOpen:
		return 2
	}
	return 0
}

// tally counts outcomes since the last transition.
type tally struct{ ok, failed int }

func (t tally) total() int { return t.ok + t.failed }

func (t tally) failureRatio() float64 {
	if t.total() == 0 {
		return 0
	}
	return float64(t.failed) / float64(t.total())
}

// halve decays old outcomes so the ratio follows recent traffic.
func (t tally) halve() tally { return tally{ok: (t.ok + 1) / 2, failed: (t.failed + 1) / 2} }

// Breaker opens once at least MinCalls outcomes were seen and the failure
// ratio reaches Ratio. It stays open for Cooloff, then admits a probe whose
// outcome closes or reopens it.
type Breaker struct {
	MinCalls int
	Ratio    float64
	Cooloff  time.Duration

	mu       sync.Mutex
	state    State
	counts   tally
	openedAt time.Time
	target   string
	logger   zerolog.Logger
	now      func() time.Time
}

// NewBreaker returns a closed breaker; zero arguments fall back to 1 call,
// a 0.5 ratio and a 30s cool-off.
func NewBreaker(minCalls int, ratio float64, cooloff time.Duration) *Breaker {
	if minCalls <= 0 {
		minCalls = 1
	}
	if ratio <= 0 {
		ratio = 0.5
	}
	if ratio > 1 {
		ratio = 1
	}
	if cooloff <= 0 {
		cooloff = 30 * time.Second
	}
	return &Breaker{MinCalls: minCalls, Ratio: ratio, Cooloff: cooloff, logger: zerolog.Nop(), now: time.Now}
}

// WithTarget names the dependency for metric labels and logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = strings.TrimSpace(target)
	b.publishLocked()
	return b
}

// WithLogger sets the logger for state transitions.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return true
	}
	if b.clock().Sub(b.openedAt) < b.Cooloff {
		return false
	}
	b.moveLocked(ctx, HalfOpen)
	return true
}

// Report records a call outcome.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		return
	case HalfOpen:
		if success {
			b.moveLocked(ctx, Closed)
		} else {
			b.moveLocked(ctx, Open)
		}
		return
	}

	if success {
		b.counts.ok++
	} else {
		b.counts.failed++
	}
	if b.counts.total() < b.MinCalls {
		return
	}
	if b.counts.failureRatio() >= b.Ratio {
		b.moveLocked(ctx, Open)
		return
	}
	if b.counts.total() > 2*b.MinCalls {
		b.counts = b.counts.halve()
	}
}

func (b *Breaker) moveLocked(ctx context.Context, next State) {
	prev := b.state
	b.state = next
	b.counts = tally{}
	if next == Open {
		b.openedAt = b.clock()
	}
	b.publishLocked()
	if prev == next {
		return
	}

	label := b.label()
	BreakerTransitions.WithLabelValues(label, prev.String(), next.String()).Inc()
	if next == Open {
		BreakerOpenedTotal.WithLabelValues(label).Inc()
	}
	logger := b.logger
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		logger = *l
	}
	evt := logger.Info().Str("target", label).Str("from_state", prev.String()).Str("to_state", next.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) publishLocked() {
	BreakerState.WithLabelValues(b.label()).Set(b.state.gauge())
}

func (b *Breaker) label() string {
	if b.target == "" {
		return "default"
	}
	return b.target
}

func (b *Breaker) clock() time.Time {
	if b.now == nil {
		return time.Now()
	}
	return b.now()
}
