package repo

import (
	"context"
	"errors"

	"github.com/noah-isme/sponsor-api/internal/events"
	"github.com/noah-isme/sponsor-api/internal/sheet"
)

// EventHeaders is the column layout of the event log.
var EventHeaders = []string{"Timestamp", "EventID", "Topic", "OrderID", "Payload"}

// EventLog persists domain events to a table so operators can audit payment
// notifications next to the orders they touched.
type EventLog struct {
	Book  sheet.Book
	Sheet string
}

// InsertEvent implements events.EventStore.
func (l EventLog) InsertEvent(ctx context.Context, ev events.Event) error {
	t, err := l.Book.EnsureTable(ctx, l.Sheet)
	if err != nil {
		return err
	}
	cols, err := sheet.EnsureHeaders(ctx, t, EventHeaders)
	if err != nil {
		return err
	}
	return t.AppendRow(ctx, cols.Row(map[string]string{
		"Timestamp": formatTime(ev.OccurredAt),
		"EventID":   ev.ID,
		"Topic":     ev.Topic,
		"OrderID":   ev.OrderID,
		"Payload":   string(ev.Payload),
	}))
}

// ForOrder returns the logged events of one order in insertion order.
func (l EventLog) ForOrder(ctx context.Context, orderID string) ([]events.Event, error) {
	t, err := l.Book.Table(ctx, l.Sheet)
	if err != nil {
		if isNoSheet(err) {
			return nil, nil
		}
		return nil, err
	}
	snap, err := sheet.Load(ctx, t)
	if err != nil {
		return nil, err
	}
	var out []events.Event
	for _, cells := range snap.Data {
		if snap.Columns.Get(cells, "OrderID") != orderID {
			continue
		}
		out = append(out, events.Event{
			ID:         snap.Columns.Get(cells, "EventID"),
			Topic:      snap.Columns.Get(cells, "Topic"),
			OrderID:    orderID,
			Payload:    []byte(snap.Columns.Get(cells, "Payload")),
			OccurredAt: parseTime(snap.Columns.Get(cells, "Timestamp")),
		})
	}
	return out, nil
}

func isNoSheet(err error) bool {
	return errors.Is(err, sheet.ErrNoSheet)
}
