package order_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sponsor-api/internal/common"
	"github.com/noah-isme/sponsor-api/internal/events"
	"github.com/noah-isme/sponsor-api/internal/order"
	"github.com/noah-isme/sponsor-api/internal/reconcile"
	"github.com/noah-isme/sponsor-api/internal/repo"
	"github.com/noah-isme/sponsor-api/internal/sheet"
)

type fixture struct {
	book   *sheet.Memory
	orders repo.Orders
	svc    *order.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{book: sheet.NewMemory()}
	f.orders = repo.Orders{Book: f.book, Sheet: "Sponsor Orders"}
	f.book.Seed("Public_Catalogue", []string{"BookID", "Book Title"}, []string{"B1", "Dune"}, []string{"B2", "Emma"})
	require.NoError(t, f.orders.Append(ctx,
		repo.OrderRow{OrderID: "QZ-1", BookID: "B1", Email: "ada@example.com", Status: repo.StatusPaid, TxnID: "T1", Provider: "paypal", Currency: "USD", Total: decimal.NewFromInt(700)},
		repo.OrderRow{OrderID: "QZ-1", BookID: "B2", Email: "ada@example.com", Status: repo.StatusPending, Provider: "paypal", Currency: "USD", Total: decimal.NewFromInt(700)},
	))
	ledger := repo.Ledger{Book: f.book, Sheet: "Sponsorship Requests"}
	require.NoError(t, ledger.AppendIntake(ctx,
		repo.LedgerEntry{SponsorEmail: "ada@example.com", BookTitle: "Dune"},
		repo.LedgerEntry{SponsorEmail: "ada@example.com", BookTitle: "Emma"},
	))
	log := repo.EventLog{Book: f.book, Sheet: "Order Events"}
	require.NoError(t, log.InsertEvent(ctx, events.Event{ID: "e1", Topic: events.TopicOrderCreated, OrderID: "QZ-1", Payload: []byte(`{"total":"700.00"}`), OccurredAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}))

	f.svc = &order.Service{
		Orders: f.orders,
		Finalizer: &reconcile.Engine{
			Orders: f.orders,
			Ledger: ledger,
			Titles: repo.Catalogue{Book: f.book, Sheet: "Public_Catalogue"},
		},
		Events: log,
	}
	return f
}

func TestStatusDerivesPartial(t *testing.T) {
	f := newFixture(t)
	sum, err := f.svc.Status(context.Background(), "QZ-1")
	require.NoError(t, err)
	require.Equal(t, order.StatusPartial, sum.Status)
	require.Equal(t, "700.00", sum.Total)
	require.Len(t, sum.Items, 2)
	require.Equal(t, "T1", sum.Items[0].TxnID)
	require.Len(t, sum.Events, 1)
	require.JSONEq(t, `{"total":"700.00"}`, string(sum.Events[0].Payload))

	_, err = f.svc.Status(context.Background(), "QZ-404")
	require.True(t, errors.Is(err, common.ErrOrderNotFound))
}

func TestDeriveStatus(t *testing.T) {
	require.Equal(t, order.StatusPending, order.DeriveStatus([]repo.OrderRow{{Status: "Pending"}}))
	require.Equal(t, order.StatusPaid, order.DeriveStatus([]repo.OrderRow{{Status: "PAID"}, {Status: "paid"}}))
}

func TestFinalizeFallsBackToOrderRows(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Finalize(context.Background(), order.FinalizeInput{OrderID: "QZ-1"})
	require.NoError(t, err)
	require.Equal(t, []string{"B1", "B2"}, res.Books)
	require.Equal(t, []string{"Dune", "Emma"}, res.Titles)
	for _, c := range res.Confirmations {
		require.True(t, c.Updated)
	}

	_, err = f.svc.Finalize(context.Background(), order.FinalizeInput{})
	require.True(t, errors.Is(err, common.ErrMissingOrderID))
}

func TestHandlers(t *testing.T) {
	f := newFixture(t)
	h := &order.Handler{Svc: f.svc, Logger: zerolog.Nop()}
	r := chi.NewRouter()
	r.Get("/orders/{orderId}", h.Get)
	r.Post("/orders/{orderId}/finalize", h.Finalize)
	r.Post("/exec", h.Finalize)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/QZ-1", nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, true, body["ok"])
	require.Equal(t, "partial", body["order"].(map[string]any)["status"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/exec", strings.NewReader(`{"type":"finalizeOrder","orderId":"QZ-1","meta":{"email":"ADA@example.com","books":["B2"]}}`)))
	body = map[string]any{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, true, body["ok"])
	require.Equal(t, "QZ-1", body["orderId"])
	require.Equal(t, []any{"B2"}, body["books"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/exec", strings.NewReader(`{"type":"finalizeOrder"}`)))
	body = map[string]any{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, false, body["ok"])
	require.Equal(t, "Missing orderId", body["error"])
}
