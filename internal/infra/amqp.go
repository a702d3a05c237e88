package infra

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Broker holds the RabbitMQ connection and the channel events are published on.
type Broker struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
}

// NewBroker dials url and declares exchange as a durable topic exchange.
func NewBroker(url, connectionName, exchange string) (*Broker, error) {
	if url == "" {
		return nil, fmt.Errorf("amqp url is required")
	}

	props := amqp.Table{}
	if connectionName != "" {
		props["connection_name"] = connectionName
	}
	conn, err := amqp.DialConfig(url, amqp.Config{Properties: props})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &Broker{Conn: conn, Channel: ch}, nil
}

// Close releases the channel and then the connection.
func (b *Broker) Close() error {
	if b == nil {
		return nil
	}
	if err := b.Channel.Close(); err != nil && !b.Conn.IsClosed() {
		b.Conn.Close()
		return fmt.Errorf("close amqp channel: %w", err)
	}
	return b.Conn.Close()
}
