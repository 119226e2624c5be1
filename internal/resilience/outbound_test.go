package resilience_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sponsor-api/internal/resilience"
)

func TestOutboundSingleAttempt(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client := resilience.NewOutbound("test_single", time.Second, zerolog.Nop())
	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader("a=b"))
	require.NoError(t, err)

	_, err = client.Do(context.Background(), req)
	require.ErrorContains(t, err, "502")
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestOutboundClientErrorsPassThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	client := resilience.HTTPClient{Client: srv.Client(), Breaker: resilience.NewBreaker(1, 0.5, time.Minute)}
	req, err := http.NewRequest(http.MethodPost, srv.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, resilience.Closed, client.Breaker.State())
}

func TestOutboundBodyReadableAfterDo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(append([]byte("echo:"), body...))
	}))
	t.Cleanup(srv.Close)

	client := resilience.NewOutbound("test_echo", time.Second, zerolog.Nop())
	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader("VALID"))
	require.NoError(t, err)

	resp, err := client.StdClient().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "echo:VALID", string(body))
}

func TestOutboundOpenBreakerRejects(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	client := resilience.HTTPClient{
		Client:  srv.Client(),
		Breaker: resilience.NewBreaker(1, 0.5, time.Minute).WithTarget("test_open"),
		Target:  "test_open",
	}
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(context.Background(), req)
	require.Error(t, err)
	_, err = client.Do(context.Background(), req)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestOutboundTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	client := resilience.HTTPClient{Client: srv.Client(), Timeout: 20 * time.Millisecond}
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(context.Background(), req)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
