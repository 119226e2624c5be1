package common

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const idemPending = "pending"

// ReplayedHeader marks a response served from the idempotency store.
const ReplayedHeader = "Idempotent-Replayed"

// Idem replays the stored response for a repeated Idempotency-Key, so a
// client retrying createOrder gets back the order it already created. A
// repeat that arrives while the first request is still running is rejected
// with 409. When the store is unreachable requests run unguarded and OnError
// sees the failure.
type Idem struct {
	R       *redis.Client
	TTL     time.Duration
	OnError func(error)
}

type storedResponse struct {
	Status int    `json:"status"`
	Type   string `json:"type"`
	Body   []byte `json:"body"`
}

func hashKey(r *http.Request, key string) string {
	sum := sha256.Sum256([]byte(r.Method + " " + r.URL.Path + " " + key))
	return "sponsor:idem:" + hex.EncodeToString(sum[:])
}

// Middleware applies the replay semantics to next.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Idempotency-Key")
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		key := hashKey(r, header)
		ttl := i.TTL
		if ttl <= 0 {
			ttl = 10 * time.Minute
		}

		claimed, err := i.R.SetNX(ctx, key, idemPending, ttl).Result()
		if err != nil {
			if i.OnError != nil {
				i.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}
		if !claimed {
			i.replay(ctx, w, key)
			return
		}

		rec := &captureWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		stored, _ := json.Marshal(storedResponse{Status: rec.status, Type: rec.Header().Get("Content-Type"), Body: rec.body.Bytes()})
		// The request context may already be cancelled once the client has its answer.
		if err := i.R.Set(context.Background(), key, stored, ttl).Err(); err != nil {
			_ = i.R.Del(context.Background(), key).Err()
		}
	})
}

func (i Idem) replay(ctx context.Context, w http.ResponseWriter, key string) {
	raw, err := i.R.Get(ctx, key).Bytes()
	if err != nil || string(raw) == idemPending {
		JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "request with this Idempotency-Key is in progress")
		return
	}
	var prev storedResponse
	if err := json.Unmarshal(raw, &prev); err != nil {
		JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request")
		return
	}
	if prev.Type != "" {
		w.Header().Set("Content-Type", prev.Type)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(prev.Status)
	_, _ = w.Write(prev.Body)
}

type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}
