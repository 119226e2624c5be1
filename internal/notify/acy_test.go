package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sponsor-api/internal/notify"
	"github.com/noah-isme/sponsor-api/internal/resilience"
)

type acyCall struct {
	Token string
	Body  map[string]any
}

type fakeAcy struct {
	mu     sync.Mutex
	calls  []acyCall
	status func(call int, token string) int
}

func newFakeAcy(t *testing.T, status func(call int, token string) int) (*fakeAcy, *httptest.Server) {
	t.Helper()
	f := &fakeAcy{status: status}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(data, &body)
		f.mu.Lock()
		f.calls = append(f.calls, acyCall{Token: r.Header.Get("X-Acy-Token"), Body: body})
		n := len(f.calls)
		f.mu.Unlock()
		w.WriteHeader(f.status(n, r.Header.Get("X-Acy-Token")))
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAcy) snapshot() []acyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]acyCall(nil), f.calls...)
}

func client(srv *httptest.Server, listID string) *notify.AcyClient {
	return &notify.AcyClient{
		URL:    srv.URL,
		APIKey: "acy-key",
		ListID: listID,
		HTTP:   resilience.HTTPClient{Client: srv.Client()},
	}
}

func TestSubscribeSendsTokenHeader(t *testing.T) {
	fake, srv := newFakeAcy(t, func(int, string) int { return http.StatusOK })

	err := client(srv, "7").Subscribe(context.Background(), notify.Subscriber{
		Email: " ada@example.com ", Name: "Ada", OrderID: "QZ-AAAA0001",
	})
	require.NoError(t, err)

	calls := fake.snapshot()
	require.Len(t, calls, 1)
	require.Equal(t, "acy-key", calls[0].Token)
	require.NotContains(t, calls[0].Body, "apiKey")
	require.Equal(t, []any{float64(7)}, calls[0].Body["listIds"])
	require.Equal(t, float64(1), calls[0].Body["status"])
	users := calls[0].Body["users"].([]any)
	user := users[0].(map[string]any)
	require.Equal(t, "ada@example.com", user["email"])
	require.Equal(t, map[string]any{"source": "Sponsor", "orderId": "QZ-AAAA0001"}, user["fields"])
}

func TestSubscribeFallsBackToBodyKey(t *testing.T) {
	fake, srv := newFakeAcy(t, func(call int, _ string) int {
		if call == 1 {
			return http.StatusUnauthorized
		}
		return http.StatusCreated
	})

	require.NoError(t, client(srv, "").Subscribe(context.Background(), notify.Subscriber{Email: "ada@example.com"}))

	calls := fake.snapshot()
	require.Len(t, calls, 2)
	require.Empty(t, calls[1].Token)
	require.Equal(t, "acy-key", calls[1].Body["apiKey"])
	require.Equal(t, []any{float64(2)}, calls[1].Body["listIds"])
}

func TestSubscribeReportsRejection(t *testing.T) {
	fake, srv := newFakeAcy(t, func(int, string) int { return http.StatusForbidden })

	err := client(srv, "2").Subscribe(context.Background(), notify.Subscriber{Email: "ada@example.com"})
	require.Error(t, err)
	require.Len(t, fake.snapshot(), 2)
}

func TestSubscribeSkipsWithoutEmailOrConfig(t *testing.T) {
	fake, srv := newFakeAcy(t, func(int, string) int { return http.StatusOK })

	require.NoError(t, client(srv, "2").Subscribe(context.Background(), notify.Subscriber{Name: "nobody"}))

	c := client(srv, "2")
	c.APIKey = ""
	require.ErrorIs(t, c.Subscribe(context.Background(), notify.Subscriber{Email: "ada@example.com"}), notify.ErrNotConfigured)
	require.Empty(t, fake.snapshot())
}
