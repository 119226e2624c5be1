package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestHandlerMiddlewareEnforcesLimitPerIP(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	handler := Handler{
		Limiter: SlidingWindow{Client: client, Prefix: "ratelimit:"},
		Config:  Config{Key: ByClientIP("createOrder"), Window: time.Minute, Max: 1},
	}
	var rejected []string
	handler.OnReject = func(_ *http.Request, key string) { rejected = append(rejected, key) }
	counted := handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil)
		req.Header.Set("X-Forwarded-For", ip)
		rr := httptest.NewRecorder()
		counted.ServeHTTP(rr, req)
		return rr
	}

	if rr := send("10.0.0.1"); rr.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", rr.Code)
	}
	rr := send("10.0.0.1")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on second request, got %d", rr.Code)
	}
	if rr.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("unexpected limit header: %q", rr.Header().Get("X-RateLimit-Limit"))
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["ok"] != false || body["code"] != "RATE_LIMITED" {
		t.Fatalf("unexpected body %#v", body)
	}
	if rr := send("10.0.0.2"); rr.Code != http.StatusOK {
		t.Fatalf("expected other client allowed, got %d", rr.Code)
	}
	if len(rejected) != 1 || rejected[0] != "createOrder:10.0.0.1" {
		t.Fatalf("unexpected rejections %v", rejected)
	}
}

func TestHandlerMiddlewareOnError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer func() { _ = client.Close() }()
	handler := Handler{
		Limiter: SlidingWindow{Client: client, Prefix: "ratelimit:"},
		Config: Config{
			Key:    func(*http.Request) string { return "err" },
			Window: time.Second,
			Max:    1,
		},
	}

	called := false
	handler.OnError = func(error) { called = true }

	counted := handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	counted.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected handler to proceed on error, got %d", rr.Code)
	}
	if !called {
		t.Fatal("expected OnError callback to be invoked")
	}
}
