/*
Package events publishes schedule lifecycle events to RabbitMQ.

CONSUMERS:
  Invoicing (Stripe) and disclosure-document generation listen on the queue.
  They are separate services; this package only produces.

DELIVERY:
  Durable queue, persistent messages, default exchange routed by queue name.
  The schedule service publishes after commit and logs failures, so a broker
  outage never rolls back a saved schedule.
*/
package events

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/tailfire/payment-engine/schedule"
)

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// AMQPPublisher implements schedule.EventPublisher.
type AMQPPublisher struct {
	ch    channel
	queue string
	log   *zap.Logger
}

var _ schedule.EventPublisher = (*AMQPPublisher)(nil)

// Dial connects to the broker.
func Dial(url string) (*amqp091.Connection, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitMQ: %w", err)
	}
	return conn, nil
}

// NewAMQPPublisher opens a channel on conn and declares the durable queue.
func NewAMQPPublisher(conn *amqp091.Connection, queue string, logger *zap.Logger) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	return newPublisher(ch, queue, logger), nil
}

func newPublisher(ch channel, queue string, logger *zap.Logger) *AMQPPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AMQPPublisher{ch: ch, queue: queue, log: logger}
}

func (p *AMQPPublisher) Publish(ctx context.Context, e schedule.Event) error {
	msg, err := Message(e)
	if err != nil {
		return err
	}
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", e.Type, err)
	}
	p.log.Debug("event published",
		zap.String("type", string(e.Type)),
		zap.String("activity_pricing_id", e.ActivityPricingID),
		zap.String("event_id", e.ID),
	)
	return nil
}

func (p *AMQPPublisher) Close() error {
	return p.ch.Close()
}

// Message encodes an event as a persistent JSON message.
func Message(e schedule.Event) (amqp091.Publishing, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("failed to encode event: %w", err)
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    e.ID,
		Type:         string(e.Type),
		Timestamp:    e.OccurredAt,
		Headers: amqp091.Table{
			"activity_pricing_id": e.ActivityPricingID,
		},
		Body: body,
	}, nil
}
