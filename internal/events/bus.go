package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is a persisted domain event keyed by the order it concerns.
type Event struct {
	ID         string
	Topic      string
	OrderID    string
	Payload    []byte
	OccurredAt time.Time
}

// EventStore defines the persistence operations required by the event bus.
type EventStore interface {
	InsertEvent(ctx context.Context, event Event) error
}

// Notifier reacts to emitted events (mailing list, metrics, etc.).
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

var errPayloadNotJSON = errors.New("payload is not valid json")

// Bus persists domain events and fans them out to downstream handlers.
type Bus struct {
	Store     EventStore
	Notifiers []Notifier
	Now       func() time.Time
}

// Emit records the event and dispatches it to all configured handlers. Notifier
// failures are joined into the returned error after every notifier has run.
func (b *Bus) Emit(ctx context.Context, topic, orderID string, payload any) (Event, error) {
	if b == nil || b.Store == nil {
		return Event{}, errors.New("events: store not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Event{}, errors.New("events: order id is required")
	}
	if !knownTopic(topic) {
		return Event{}, fmt.Errorf("events: unknown topic %q", topic)
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	ev := Event{
		ID:         uuid.NewString(),
		Topic:      topic,
		OrderID:    orderID,
		Payload:    encoded,
		OccurredAt: now().UTC(),
	}
	if err := b.Store.InsertEvent(ctx, ev); err != nil {
		return Event{}, fmt.Errorf("events: persist event: %w", err)
	}
	var joined error
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if notifyErr := notifier.Notify(ctx, ev); notifyErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", notifyErr))
		}
	}
	return ev, joined
}

// encodePayload accepts pre-encoded JSON ([]byte, json.RawMessage, string)
// or any marshalable value. Empty input becomes "{}".
func encodePayload(payload any) ([]byte, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
		return []byte("{}"), nil
	case []byte:
		raw = v
	case json.RawMessage:
		raw = v
	case string:
		raw = []byte(strings.TrimSpace(v))
	default:
		return json.Marshal(v)
	}
	if len(raw) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(raw) {
		return nil, errPayloadNotJSON
	}
	return append([]byte(nil), raw...), nil
}
