// Package amqpsink publishes audit events to a RabbitMQ exchange.
package amqpsink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jrsteele09/go-oidc-connector/audit"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RoutingKeyPrefix is prepended to the event type to form the routing key.
const RoutingKeyPrefix = "oidc.audit."

// Publisher is the part of *amqp.Channel the sink uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

var _ audit.Sink = (*Sink)(nil)

// Sink publishes each event as a persistent JSON message.
type Sink struct {
	publisher Publisher
	exchange  string
	closeFn   func() error
}

// New wraps an already open channel.
func New(publisher Publisher, exchange string) *Sink {
	return &Sink{publisher: publisher, exchange: exchange, closeFn: func() error { return nil }}
}

// Dial connects to url, declares a durable topic exchange and returns a Sink
// publishing to it.
func Dial(url, exchange string) (*Sink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	s := New(ch, exchange)
	s.closeFn = func() error {
		_ = ch.Close()
		return conn.Close()
	}
	return s, nil
}

func (s *Sink) Emit(ctx context.Context, event audit.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}
	err = s.publisher.PublishWithContext(ctx,
		s.exchange,                          // exchange
		RoutingKeyPrefix+string(event.Type), // routing key
		false,                               // mandatory
		false,                               // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Timestamp:    event.OccurredAt,
			Type:         string(event.Type),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish audit event: %w", err)
	}
	return nil
}

// Close closes the channel and connection opened by Dial.
func (s *Sink) Close() error {
	return s.closeFn()
}
