package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/auth-service/internal/queue"
)

// Publisher delivers auth events to whoever listens for them.
type Publisher interface {
	Publish(ctx context.Context, ev queue.AuthEvent) error
}

// NoopPublisher drops every event.  It is used when events are disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, queue.AuthEvent) error { return nil }

// AMQPPublisher publishes events as persistent JSON messages to a durable
// queue on the default exchange.  It dials per publish; auth events are
// infrequent enough that a long-lived channel is not worth the reconnect
// handling.
type AMQPPublisher struct {
	URL   string
	Queue string
}

func NewAMQPPublisher(url string) *AMQPPublisher {
	return &AMQPPublisher{URL: url, Queue: queue.AuthEventsQueue}
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev queue.AuthEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	conn, err := amqp.DialConfig(p.URL, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// idempotent; durable so messages survive broker restarts
	if _, err := ch.QueueDeclare(p.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}

	err = ch.PublishWithContext(ctx, "", p.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         ev.Type,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

// Emit publishes ev in the background.  Failures are logged and never
// reach the request that triggered the event.
func Emit(logger *slog.Logger, p Publisher, ev queue.AuthEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.Publish(ctx, ev); err != nil {
			logger.Warn("publish auth event failed", "type", ev.Type, "event_id", ev.ID, "error", err)
		}
	}()
}
