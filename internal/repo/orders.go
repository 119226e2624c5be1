package repo

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sponsor-api/internal/sheet"
)

// Order columns.
const (
	ColTimestamp  = "Timestamp"
	ColOrderID    = "OrderID"
	ColPackage    = "Package"
	ColPlan       = "Plan"
	ColCurrency   = "Currency"
	ColBookID     = "BookID"
	ColName       = "Name"
	ColEmail      = "Email"
	ColReferral   = "Referral"
	ColTeamMember = "TeamMember"
	ColStatus     = "Status"
	ColProvider   = "Provider"
	ColTotal      = "Total"
	ColTxnID      = "TxnID"
)

// OrderHeaders is the canonical column order of the order table.
var OrderHeaders = []string{
	ColTimestamp, ColOrderID, ColPackage, ColPlan, ColCurrency, ColBookID, ColName, ColEmail,
	ColReferral, ColTeamMember, ColStatus, ColProvider, ColTotal, ColTxnID,
}

// OrderRow is one persisted line item. Rows sharing an OrderID form an order.
type OrderRow struct {
	Ref        int
	Timestamp  time.Time
	OrderID    string
	Package    string
	Plan       string
	Currency   string
	BookID     string
	Name       string
	Email      string
	Referral   string
	TeamMember string
	Status     string
	Provider   string
	Total      decimal.Decimal
	TxnID      string

	// HasTotal is false when the table carries no Total column.
	HasTotal bool
}

// Paid reports whether the row already reached the terminal status.
func (r OrderRow) Paid() bool {
	return IsPaid(r.Status)
}

func (r OrderRow) fields() map[string]string {
	return map[string]string{
		ColTimestamp:  formatTime(r.Timestamp),
		ColOrderID:    r.OrderID,
		ColPackage:    r.Package,
		ColPlan:       r.Plan,
		ColCurrency:   r.Currency,
		ColBookID:     r.BookID,
		ColName:       r.Name,
		ColEmail:      r.Email,
		ColReferral:   r.Referral,
		ColTeamMember: r.TeamMember,
		ColStatus:     r.Status,
		ColProvider:   r.Provider,
		ColTotal:      r.Total.StringFixed(2),
		ColTxnID:      r.TxnID,
	}
}

func decodeOrderRow(cols sheet.Columns, ref int, cells []string) OrderRow {
	return OrderRow{
		Ref:        ref,
		Timestamp:  parseTime(cols.Get(cells, ColTimestamp)),
		OrderID:    cols.Get(cells, ColOrderID),
		Package:    cols.Get(cells, ColPackage),
		Plan:       cols.Get(cells, ColPlan),
		Currency:   cols.Get(cells, ColCurrency),
		BookID:     cols.Get(cells, ColBookID),
		Name:       cols.Get(cells, ColName),
		Email:      cols.Get(cells, ColEmail),
		Referral:   cols.Get(cells, ColReferral),
		TeamMember: cols.Get(cells, ColTeamMember),
		Status:     cols.Get(cells, ColStatus),
		Provider:   cols.Get(cells, ColProvider),
		Total:      ParseAmount(cols.Get(cells, ColTotal)),
		TxnID:      cols.Get(cells, ColTxnID),
		HasTotal:   cols.Has(ColTotal),
	}
}

// Orders is the order table. Columns are resolved by name on every call.
type Orders struct {
	Book  sheet.Book
	Sheet string
}

func (o Orders) table(ctx context.Context) (sheet.Table, error) {
	return o.Book.EnsureTable(ctx, o.Sheet)
}

// EnsureHeaders provisions the canonical columns without disturbing existing ones.
func (o Orders) EnsureHeaders(ctx context.Context) error {
	t, err := o.table(ctx)
	if err != nil {
		return err
	}
	_, err = sheet.EnsureHeaders(ctx, t, OrderHeaders)
	return err
}

// Append writes rows at the end of the table. Fields whose column is absent are dropped.
func (o Orders) Append(ctx context.Context, rows ...OrderRow) error {
	t, err := o.table(ctx)
	if err != nil {
		return err
	}
	snap, err := sheet.Load(ctx, t)
	if err != nil {
		return err
	}
	cols := snap.Columns
	if len(cols) == 0 {
		if cols, err = sheet.EnsureHeaders(ctx, t, OrderHeaders); err != nil {
			return err
		}
	}
	for _, row := range rows {
		if err := t.AppendRow(ctx, cols.Row(row.fields())); err != nil {
			return err
		}
	}
	return nil
}

// FindAll returns every row accepted by match, in table order.
func (o Orders) FindAll(ctx context.Context, match func(OrderRow) bool) ([]OrderRow, error) {
	t, err := o.table(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := sheet.Load(ctx, t)
	if err != nil {
		return nil, err
	}
	var out []OrderRow
	for i, cells := range snap.Data {
		row := decodeOrderRow(snap.Columns, snap.Ref(i), cells)
		if match == nil || match(row) {
			out = append(out, row)
		}
	}
	return out, nil
}

// FindByOrderID returns the line items of one order.
func (o Orders) FindByOrderID(ctx context.Context, orderID string) ([]OrderRow, error) {
	orderID = strings.TrimSpace(orderID)
	return o.FindAll(ctx, func(r OrderRow) bool { return r.OrderID == orderID })
}

// UpdateCell sets one field of the row at ref. An absent column is skipped.
func (o Orders) UpdateCell(ctx context.Context, ref int, field, value string) error {
	return o.UpdateFields(ctx, ref, map[string]string{field: value})
}

// UpdateFields sets several fields of the row at ref, resolving the header once.
func (o Orders) UpdateFields(ctx context.Context, ref int, values map[string]string) error {
	t, err := o.table(ctx)
	if err != nil {
		return err
	}
	snap, err := sheet.Load(ctx, t)
	if err != nil {
		return err
	}
	for _, name := range sortedKeys(values) {
		if err := sheet.SetField(ctx, t, snap.Columns, ref, name, values[name]); err != nil {
			return err
		}
	}
	return nil
}
