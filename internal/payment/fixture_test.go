package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sponsor-api/internal/reconcile"
	"github.com/noah-isme/sponsor-api/internal/repo"
	"github.com/noah-isme/sponsor-api/internal/sheet"
)

type store struct {
	book   *sheet.Memory
	orders repo.Orders
	engine *reconcile.Engine
}

func newStore(t *testing.T) *store {
	t.Helper()
	s := &store{book: sheet.NewMemory()}
	s.orders = repo.Orders{Book: s.book, Sheet: "Sponsor Orders"}
	s.book.Seed("Public_Catalogue", []string{"BookID", "Book Title"}, []string{"B1", "Dune"})
	require.NoError(t, s.orders.Append(context.Background(),
		repo.OrderRow{OrderID: "QZ-AAAA0001", BookID: "B1", Email: "ada@example.com", Status: repo.StatusPending, Provider: "payfast", Currency: "ZAR", Total: decimal.RequireFromString("700.00")},
		repo.OrderRow{OrderID: "QZ-AAAA0001", BookID: "B2", Email: "ada@example.com", Status: repo.StatusPending, Provider: "payfast", Currency: "ZAR", Total: decimal.RequireFromString("700.00")},
	))
	s.engine = &reconcile.Engine{
		Orders: s.orders,
		Ledger: repo.Ledger{Book: s.book, Sheet: "Sponsorship Requests"},
		Titles: repo.Catalogue{Book: s.book, Sheet: "Public_Catalogue"},
	}
	return s
}

func (s *store) statuses(t *testing.T, orderID string) []string {
	t.Helper()
	rows, err := s.orders.FindByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Status + "|" + r.TxnID
	}
	return out
}

// fakePayPal serves the subset of the REST API the gateway calls.
type fakePayPal struct {
	mu           sync.Mutex
	failOrders   bool
	verifyStatus string
	captured     []string
	orders       []map[string]any
}

func (f *fakePayPal) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/v1/oauth2/token":
			_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "token_type": "Bearer", "expires_in": 3600})
		case r.URL.Path == "/v2/checkout/orders" && r.Method == http.MethodPost:
			if f.failOrders {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"name":"INTERNAL_SERVICE_ERROR","message":"boom"}`))
				return
			}
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.orders = append(f.orders, body)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":     "PP-ORDER-1",
				"status": "CREATED",
				"links": []map[string]string{
					{"href": "https://paypal.test/self", "rel": "self"},
					{"href": "https://paypal.test/approve?token=PP-ORDER-1", "rel": "approve"},
				},
			})
		case strings.HasPrefix(r.URL.Path, "/v2/checkout/orders/") && strings.HasSuffix(r.URL.Path, "/capture"):
			id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v2/checkout/orders/"), "/capture")
			f.captured = append(f.captured, id)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":     id,
				"status": "COMPLETED",
				"purchase_units": []map[string]any{{
					"reference_id": "QZ-AAAA0001",
					"payments":     map[string]any{"captures": []map[string]any{{"id": "CAP-" + id, "status": "COMPLETED"}}},
				}},
			})
		case r.URL.Path == "/v1/notifications/verify-webhook-signature":
			_ = json.NewEncoder(w).Encode(map[string]string{"verification_status": f.verifyStatus})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}
