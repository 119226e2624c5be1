package order

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/noah-isme/sponsor-api/internal/common"
	"github.com/noah-isme/sponsor-api/internal/events"
	"github.com/noah-isme/sponsor-api/internal/pricing"
	"github.com/noah-isme/sponsor-api/internal/reconcile"
	"github.com/noah-isme/sponsor-api/internal/repo"
)

// Derived order states. A partial order has some rows Paid, usually after an
// interrupted settlement.
const (
	StatusPending = "pending"
	StatusPartial = "partial"
	StatusPaid    = "paid"
)

// OrderReader loads the rows of one order.
type OrderReader interface {
	FindByOrderID(ctx context.Context, orderID string) ([]repo.OrderRow, error)
}

// Finalizer confirms ledger rows; *reconcile.Engine satisfies it.
type Finalizer interface {
	Finalize(ctx context.Context, orderID, email string, bookIDs []string) (reconcile.FinalizeResult, error)
}

// EventReader lists the logged events of an order.
type EventReader interface {
	ForOrder(ctx context.Context, orderID string) ([]events.Event, error)
}

// Service answers order lookups and manual finalization.
type Service struct {
	Orders    OrderReader
	Finalizer Finalizer
	Events    EventReader
}

// Item is one line of an order summary.
type Item struct {
	BookID string `json:"bookId"`
	Status string `json:"status"`
	TxnID  string `json:"txnId,omitempty"`
}

// EventView is a logged event rendered for clients.
type EventView struct {
	Topic      string          `json:"topic"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Summary describes an order across its rows.
type Summary struct {
	OrderID  string      `json:"orderId"`
	Status   string      `json:"status"`
	Provider string      `json:"provider"`
	Package  string      `json:"package"`
	Plan     string      `json:"plan"`
	Currency string      `json:"currency"`
	Total    string      `json:"total"`
	Items    []Item      `json:"items"`
	Events   []EventView `json:"events,omitempty"`
}

// DeriveStatus folds row statuses into pending, partial or paid.
func DeriveStatus(rows []repo.OrderRow) string {
	paid := 0
	for _, r := range rows {
		if r.Paid() {
			paid++
		}
	}
	switch {
	case paid == 0:
		return StatusPending
	case paid == len(rows):
		return StatusPaid
	default:
		return StatusPartial
	}
}

// Status summarises orderID. Order-level fields come from the first row.
func (s *Service) Status(ctx context.Context, orderID string) (Summary, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Summary{}, common.Errorf(common.ErrMissingOrderID, "Missing orderId")
	}
	rows, err := s.Orders.FindByOrderID(ctx, orderID)
	if err != nil {
		return Summary{}, err
	}
	if len(rows) == 0 {
		return Summary{}, common.Errorf(common.ErrOrderNotFound, "order not found: %s", orderID)
	}
	first := rows[0]
	sum := Summary{
		OrderID:  orderID,
		Status:   DeriveStatus(rows),
		Provider: first.Provider,
		Package:  first.Package,
		Plan:     first.Plan,
		Currency: first.Currency,
		Total:    pricing.Format(first.Total),
		Items:    make([]Item, len(rows)),
	}
	for i, r := range rows {
		sum.Items[i] = Item{BookID: r.BookID, Status: r.Status, TxnID: r.TxnID}
	}
	if s.Events != nil {
		evs, err := s.Events.ForOrder(ctx, orderID)
		if err != nil {
			return sum, err
		}
		for _, ev := range evs {
			view := EventView{Topic: ev.Topic, OccurredAt: ev.OccurredAt}
			if json.Valid(ev.Payload) {
				view.Payload = json.RawMessage(ev.Payload)
			}
			sum.Events = append(sum.Events, view)
		}
	}
	return sum, nil
}

// FinalizeInput carries the sponsor email and paid book ids. Either may be
// omitted, in which case it is taken from the order rows.
type FinalizeInput struct {
	OrderID string   `json:"orderId"`
	Email   string   `json:"email"`
	Books   []string `json:"books"`
}

// Finalize confirms the sponsor's ledger rows for a manually settled order.
func (s *Service) Finalize(ctx context.Context, in FinalizeInput) (reconcile.FinalizeResult, error) {
	in.OrderID = strings.TrimSpace(in.OrderID)
	if in.OrderID == "" {
		return reconcile.FinalizeResult{}, common.Errorf(common.ErrMissingOrderID, "Missing orderId")
	}
	email := strings.TrimSpace(in.Email)
	books := in.Books
	if (email == "" || len(books) == 0) && s.Orders != nil {
		rows, err := s.Orders.FindByOrderID(ctx, in.OrderID)
		if err != nil {
			return reconcile.FinalizeResult{OrderID: in.OrderID}, err
		}
		for _, r := range rows {
			if email == "" && r.Email != "" {
				email = r.Email
			}
			if len(in.Books) == 0 && r.BookID != "" {
				books = append(books, r.BookID)
			}
		}
	}
	if books == nil {
		books = []string{}
	}
	return s.Finalizer.Finalize(ctx, in.OrderID, email, books)
}
