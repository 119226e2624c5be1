package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sponsor-api/internal/events"
)

type stubStore struct {
	events []events.Event
	err    error
}

func (s *stubStore) InsertEvent(_ context.Context, ev events.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	bus := events.Bus{
		Store:     store,
		Notifiers: []events.Notifier{notifier},
		Now:       func() time.Time { return fixed },
	}

	event, err := bus.Emit(context.Background(), events.TopicOrderCreated, "QZ-ABCD1234", map[string]any{"orderId": "QZ-ABCD1234"})
	require.NoError(t, err)
	require.Len(t, store.events, 1)
	require.Equal(t, events.TopicOrderCreated, store.events[0].Topic)
	require.JSONEq(t, `{"orderId":"QZ-ABCD1234"}`, string(store.events[0].Payload))
	require.Equal(t, fixed, event.OccurredAt)
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "QZ-ABCD1234", decoded["orderId"])
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	_, err := bus.Emit(context.Background(), " ", "QZ-1", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderPaid, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderPaid, "QZ-1", "not json")
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), "order.shipped", "QZ-1", nil)
	require.ErrorContains(t, err, "unknown topic")

	var nilBus *events.Bus
	_, err = nilBus.Emit(context.Background(), events.TopicOrderPaid, "QZ-1", nil)
	require.Error(t, err)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	failing := &captureNotifier{err: errors.New("boom")}
	after := &captureNotifier{}
	bus := events.Bus{Store: &stubStore{}, Notifiers: []events.Notifier{failing, nil, after}}

	_, err := bus.Emit(context.Background(), events.TopicOrderPaid, "QZ-1", nil)
	require.ErrorContains(t, err, "boom")
	require.Len(t, after.events, 1)
}

func TestEmitStopsWhenStoreFails(t *testing.T) {
	notifier := &captureNotifier{}
	bus := events.Bus{Store: &stubStore{err: errors.New("disk full")}, Notifiers: []events.Notifier{notifier}}
	_, err := bus.Emit(context.Background(), events.TopicOrderPaid, "QZ-1", nil)
	require.Error(t, err)
	require.Empty(t, notifier.events)
}
