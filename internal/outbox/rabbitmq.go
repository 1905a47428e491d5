// Package outbox relays committed ledger changes to RabbitMQ.
package outbox

import (
	"context"
	"fmt"
	"time"

	"spray_ledger/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher delivers one outbox message to the broker.
type Publisher interface {
	Publish(ctx context.Context, m domain.OutboxMessage) error
}

// RabbitMQ holds the broker connection and the channel used for publishing.
type RabbitMQ struct {
	Connection *amqp.Connection
	Channel    *amqp.Channel
	URL        string
}

// NewRabbitMQ returns an unconnected broker handle.
func NewRabbitMQ(url string) *RabbitMQ {
	return &RabbitMQ{URL: url}
}

// Connect dials the broker and declares exchange as a durable topic exchange.
func (r *RabbitMQ) Connect(exchange string) error {
	conn, err := amqp.Dial(r.URL)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("rabbitmq declare exchange %s: %w", exchange, err)
	}
	r.Connection = conn
	r.Channel = ch
	return nil
}

// Close releases the channel and the connection.
func (r *RabbitMQ) Close() {
	if r.Channel != nil {
		r.Channel.Close()
	}
	if r.Connection != nil {
		r.Connection.Close()
	}
}

// RabbitMQPublisher publishes messages to an exchange using the message
// type as routing key.
type RabbitMQPublisher struct {
	channel  *amqp.Channel
	exchange string
}

// NewRabbitMQPublisher binds a publisher to ch and exchange.
func NewRabbitMQPublisher(ch *amqp.Channel, exchange string) *RabbitMQPublisher {
	return &RabbitMQPublisher{channel: ch, exchange: exchange}
}

// Publish implements Publisher.
func (p *RabbitMQPublisher) Publish(ctx context.Context, m domain.OutboxMessage) error {
	err := p.channel.PublishWithContext(
		ctx,
		p.exchange,
		m.Type,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         []byte(m.Payload),
			DeliveryMode: amqp.Persistent,
			MessageId:    m.ID, // Consumers dedupe on the outbox id
			Timestamp:    time.Now().UTC(),
			Type:         m.Type,
			Headers: amqp.Table{
				"attempts":   int32(m.Attempts),
				"created_at": m.CreatedAt.Format(time.RFC3339Nano),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("publish outbox message %s: %w", m.ID, err)
	}
	return nil
}
