// Package reconcile applies confirmed payments to the order table and the
// public ledger.
//
// Writers only ever move a row from Pending to Paid. Rows of one order are
// updated one cell at a time with no cross-row transaction, so a crash between
// writes can leave an order partially paid; the next confirmation for the same
// order completes it because every step is idempotent.
package reconcile

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/sponsor-api/internal/events"
	"github.com/noah-isme/sponsor-api/internal/lock"
	"github.com/noah-isme/sponsor-api/internal/obs"
	"github.com/noah-isme/sponsor-api/internal/repo"
)

// OrderStore is the subset of the order table used for reconciliation.
type OrderStore interface {
	FindByOrderID(ctx context.Context, orderID string) ([]repo.OrderRow, error)
	UpdateFields(ctx context.Context, ref int, values map[string]string) error
}

// LedgerStore confirms sponsorships on the public ledger.
type LedgerStore interface {
	Confirm(ctx context.Context, email string, titles []string, at time.Time) ([]repo.Confirmation, error)
}

// TitleResolver maps catalogue ids to titles.
type TitleResolver interface {
	Titles(ctx context.Context) (map[string]string, error)
}

// Locker serializes work per key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic, orderID string, payload any) (events.Event, error)
}

// Engine reconciles payment confirmations. Locker and Events are optional.
type Engine struct {
	Orders  OrderStore
	Ledger  LedgerStore
	Titles  TitleResolver
	Locker  Locker
	LockTTL time.Duration
	Events  Emitter
	Logger  zerolog.Logger
	Now     func() time.Time
}

// Settlement summarises MarkOrderPaid.
type Settlement struct {
	OrderID      string   `json:"orderId"`
	TxnID        string   `json:"txnId,omitempty"`
	Email        string   `json:"email,omitempty"`
	Name         string   `json:"name,omitempty"`
	BookIDs      []string `json:"books"`
	Rows         int      `json:"rows"`
	Transitioned int      `json:"transitioned"`
}

// FinalizeResult summarises a ledger confirmation.
type FinalizeResult struct {
	OrderID       string              `json:"orderId"`
	Books         []string            `json:"books"`
	Titles        []string            `json:"titles"`
	Confirmations []repo.Confirmation `json:"-"`
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// MarkOrderPaid moves every Pending row of orderID to Paid and stamps txnID.
// Rows already Paid keep their status; a blank TxnID on them is filled in.
// The email of the first row carrying one and every book id are collected.
func (e *Engine) MarkOrderPaid(ctx context.Context, orderID, txnID string) (Settlement, error) {
	orderID = strings.TrimSpace(orderID)
	txnID = strings.TrimSpace(txnID)
	out := Settlement{OrderID: orderID, TxnID: txnID, BookIDs: []string{}}

	rows, err := e.Orders.FindByOrderID(ctx, orderID)
	if err != nil {
		return out, err
	}
	out.Rows = len(rows)
	for _, row := range rows {
		if out.Email == "" && row.Email != "" {
			out.Email = row.Email
		}
		if out.Name == "" && row.Name != "" {
			out.Name = row.Name
		}
		if row.BookID != "" {
			out.BookIDs = append(out.BookIDs, row.BookID)
		}

		if row.Paid() {
			obs.Inc(obs.ReconcileRowsTotal, "already_paid")
			if row.TxnID == "" && txnID != "" {
				if err := e.Orders.UpdateFields(ctx, row.Ref, map[string]string{repo.ColTxnID: txnID}); err != nil {
					return out, err
				}
			}
			continue
		}
		fields := map[string]string{repo.ColStatus: repo.StatusPaid}
		if txnID != "" {
			fields[repo.ColTxnID] = txnID
		}
		if err := e.Orders.UpdateFields(ctx, row.Ref, fields); err != nil {
			return out, err
		}
		out.Transitioned++
		obs.Inc(obs.ReconcileRowsTotal, "paid")
	}
	return out, nil
}

// ResolveTitles maps book ids to catalogue titles. The legacy item maps to
// itself and unknown ids resolve to "".
func (e *Engine) ResolveTitles(ctx context.Context, bookIDs []string) ([]string, error) {
	titles := make([]string, len(bookIDs))
	if len(bookIDs) == 0 {
		return titles, nil
	}
	var byID map[string]string
	if e.Titles != nil {
		var err error
		if byID, err = e.Titles.Titles(ctx); err != nil {
			return nil, err
		}
	}
	for i, id := range bookIDs {
		id = strings.TrimSpace(id)
		if strings.EqualFold(id, repo.LegacyBookID) {
			titles[i] = repo.LegacyBookID
			continue
		}
		titles[i] = strings.TrimSpace(byID[id])
	}
	return titles, nil
}

// FinalizeTitles confirms the sponsor's ledger rows for the given titles.
func (e *Engine) FinalizeTitles(ctx context.Context, orderID, email string, titles []string) (FinalizeResult, error) {
	res := FinalizeResult{OrderID: orderID, Books: []string{}, Titles: titles}
	email = strings.ToLower(strings.TrimSpace(email))
	confirmations, err := e.Ledger.Confirm(ctx, email, titles, e.now())
	if err != nil {
		return res, err
	}
	res.Confirmations = confirmations
	for _, c := range confirmations {
		switch {
		case c.Updated:
			obs.Inc(obs.LedgerConfirmTotal, "updated")
		case c.Matched:
			obs.Inc(obs.LedgerConfirmTotal, "unchanged")
		default:
			obs.Inc(obs.LedgerConfirmTotal, "unmatched")
		}
	}
	return res, nil
}

// Finalize resolves book ids to titles and confirms them on the ledger.
func (e *Engine) Finalize(ctx context.Context, orderID, email string, bookIDs []string) (FinalizeResult, error) {
	titles, err := e.ResolveTitles(ctx, bookIDs)
	if err != nil {
		return FinalizeResult{OrderID: orderID, Books: bookIDs}, err
	}
	res, err := e.FinalizeTitles(ctx, orderID, email, titles)
	res.Books = append([]string{}, bookIDs...)
	return res, err
}

// Settle is the shared path behind every confirmed payment: mark the order
// rows Paid, then confirm the public ledger. Ledger failures are logged and
// left for a later confirmation or a manual finalize.
func (e *Engine) Settle(ctx context.Context, orderID, txnID, source string) (Settlement, error) {
	ctx, span := otel.Tracer("reconcile").Start(ctx, "reconcile.Settle")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.String("payment.source", source))

	var settlement Settlement
	err := e.withOrderLock(ctx, orderID, func(ctx context.Context) error {
		var markErr error
		settlement, markErr = e.MarkOrderPaid(ctx, orderID, txnID)
		return markErr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return settlement, err
	}

	logger := e.Logger.With().Str("order_id", orderID).Str("source", source).Logger()
	if settlement.Rows == 0 {
		logger.Warn().Msg("settle: no order rows found")
		return settlement, nil
	}

	if _, ferr := e.Finalize(ctx, orderID, settlement.Email, settlement.BookIDs); ferr != nil {
		logger.Error().Err(ferr).Msg("settle: ledger finalize failed")
	}

	if settlement.Transitioned > 0 && e.Events != nil {
		payload := map[string]any{
			"orderId": orderID,
			"txnId":   settlement.TxnID,
			"email":   settlement.Email,
			"name":    settlement.Name,
			"books":   settlement.BookIDs,
			"source":  source,
		}
		if _, eerr := e.Events.Emit(ctx, events.TopicOrderPaid, orderID, payload); eerr != nil {
			logger.Warn().Err(eerr).Msg("settle: emit order.paid failed")
		}
	}
	logger.Info().Int("rows", settlement.Rows).Int("transitioned", settlement.Transitioned).Str("txn_id", settlement.TxnID).Msg("order settled")
	return settlement, nil
}

// withOrderLock runs fn under the per-order lock when a locker is configured.
// An unavailable lock store does not block settlement.
func (e *Engine) withOrderLock(ctx context.Context, orderID string, fn func(context.Context) error) error {
	if e.Locker == nil {
		return fn(ctx)
	}
	ran := false
	err := e.Locker.WithLock(ctx, lock.OrderKey(orderID), e.LockTTL, func(ctx context.Context) error {
		ran = true
		return fn(ctx)
	})
	if err != nil && !ran && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		e.Logger.Warn().Err(err).Str("order_id", orderID).Msg("settle: order lock unavailable, continuing unlocked")
		return fn(ctx)
	}
	return err
}
