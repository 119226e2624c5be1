package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/sponsor-api/internal/common"
)

// Config picks the bucket for a request and its allowance per window.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// ByClientIP buckets requests per scope and caller address.
func ByClientIP(scope string) func(*http.Request) string {
	return func(r *http.Request) string {
		return scope + ":" + common.ClientIP(r)
	}
}

// Handler guards a route with a Limiter. The limiter failing open keeps
// payments flowing when Redis is down; OnError sees those failures and
// OnReject sees each 429.
type Handler struct {
	Limiter  Limiter
	Config   Config
	OnError  func(error)
	OnReject func(r *http.Request, key string)
}

func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Limiter == nil || h.Config.Key == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := h.Config.Key(r)
		ok, remaining, reset, err := h.Limiter.Allow(r.Context(), key, h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}
		setLimitHeaders(w.Header(), max(h.Config.Max, 0), remaining, reset)
		if ok {
			next.ServeHTTP(w, r)
			return
		}
		if h.OnReject != nil {
			h.OnReject(r, key)
		}
		wait := max(int(time.Until(reset).Seconds()), 0)
		w.Header().Set("Retry-After", strconv.Itoa(wait))
		common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
	})
}

func setLimitHeaders(h http.Header, limit, remaining int, reset time.Time) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
}
