package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/luxtransfer/booking/pkg/logger"
)

// Event is the envelope carried on every subject.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Subject    string          `json:"subject"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// Handler processes a single delivered event.
type Handler func(ctx context.Context, event *Event) error

// Bus is a NATS-backed publish/subscribe bus for domain events.
type Bus struct {
	conn *nats.Conn
	subs []*nats.Subscription
}

// Connect establishes the NATS connection.
func Connect(url string) (*Bus, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("eventbus: connect: %w", err)
	}
	return &Bus{conn: conn}, nil
}

// Publish serializes the payload and publishes it on the subject.
func (b *Bus) Publish(ctx context.Context, subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("eventbus: marshal payload: %w", err)
	}

	event := Event{
		ID:         uuid.New(),
		Subject:    subject,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}

	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event: %w", err)
	}

	if err := b.conn.Publish(subject, raw); err != nil {
		return fmt.Errorf("eventbus: publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a queue subscription; queue grouping makes delivery
// safe across multiple process instances.
func (b *Bus) Subscribe(ctx context.Context, subject, queue string, handler Handler) error {
	sub, err := b.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			logger.Error("eventbus: malformed event dropped",
				zap.String("subject", subject),
				zap.Error(err),
			)
			return
		}

		if err := handler(ctx, &event); err != nil {
			logger.Error("eventbus: handler failed",
				zap.String("subject", subject),
				zap.String("event_id", event.ID.String()),
				zap.Error(err),
			)
		}
	})
	if err != nil {
		return fmt.Errorf("eventbus: subscribe %s: %w", subject, err)
	}

	b.subs = append(b.subs, sub)
	return nil
}

// Close drains subscriptions and closes the connection.
func (b *Bus) Close() {
	for _, sub := range b.subs {
		_ = sub.Drain()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}
