package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// Exchange is the topic exchange transaction events are published to.
	Exchange = "ledger_events"

	routingKeyPrefix = "transaction."
)

// Publisher is the part of *amqp.Channel the notifier needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes events as persistent JSON messages, routed by kind.
type AMQPNotifier struct {
	channel Publisher
	logger  *slog.Logger
}

// NewAMQPNotifier wraps an open channel.
func NewAMQPNotifier(channel Publisher, logger *slog.Logger) *AMQPNotifier {
	return &AMQPNotifier{channel: channel, logger: logger}
}

// RoutingKey returns the routing key for an event kind, e.g. transaction.refund.
func RoutingKey(kind string) string {
	return routingKeyPrefix + kind
}

// Send publishes event on the ledger_events exchange.
func (n *AMQPNotifier) Send(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	key := RoutingKey(event.Kind)
	err = n.channel.PublishWithContext(ctx, Exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.Reference,
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}

	if n.logger != nil {
		n.logger.Debug("event published", slog.String("routing_key", key), slog.String("reference", event.Reference))
	}
	return nil
}
