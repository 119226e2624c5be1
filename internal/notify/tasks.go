package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sponsor-api/internal/events"
)

// TaskSubscribe is the asynq task type for mailing list subscriptions.
const TaskSubscribe = "mailing:subscribe"

// QueueMailing is the asynq queue the subscribe tasks run on.
const QueueMailing = "mailing"

// Enqueuer publishes tasks; *asynq.Client satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewSubscribeTask encodes sub as a subscribe task. The order id doubles as
// the task id so a repeated order.paid does not enqueue twice.
func NewSubscribeTask(sub Subscriber) (*asynq.Task, []asynq.Option, error) {
	payload, err := json.Marshal(sub)
	if err != nil {
		return nil, nil, fmt.Errorf("notify: encode subscriber: %w", err)
	}
	opts := []asynq.Option{
		asynq.Queue(QueueMailing),
		asynq.MaxRetry(5),
		asynq.Timeout(30 * time.Second),
	}
	if id := strings.TrimSpace(sub.OrderID); id != "" {
		opts = append(opts, asynq.TaskID("subscribe:"+id))
	}
	return asynq.NewTask(TaskSubscribe, payload), opts, nil
}

// MailingNotifier turns order.paid events into subscribe tasks.
type MailingNotifier struct {
	Queue  Enqueuer
	Logger zerolog.Logger
}

type paidPayload struct {
	OrderID string `json:"orderId"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// Notify implements events.Notifier. Events other than order.paid and orders
// without an email are ignored.
func (n MailingNotifier) Notify(ctx context.Context, ev events.Event) error {
	if n.Queue == nil || ev.Topic != events.TopicOrderPaid {
		return nil
	}
	var p paidPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return fmt.Errorf("notify: decode order.paid: %w", err)
	}
	if strings.TrimSpace(p.Email) == "" {
		return nil
	}
	orderID := p.OrderID
	if orderID == "" {
		orderID = ev.OrderID
	}
	task, opts, err := NewSubscribeTask(Subscriber{Email: p.Email, Name: p.Name, OrderID: orderID, Source: "Sponsor"})
	if err != nil {
		return err
	}
	info, err := n.Queue.EnqueueContext(ctx, task, opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("notify: enqueue subscribe: %w", err)
	}
	n.Logger.Debug().Str("order_id", orderID).Str("task_id", info.ID).Msg("mailing subscription enqueued")
	return nil
}
