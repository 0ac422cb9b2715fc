package broker

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes messages onto the tasks exchange. A single Publisher
// may be shared across goroutines; amqp091-go channels serialize publishes
// internally.
type Publisher struct {
	ch *amqp.Channel
}

// NewPublisher constructs a Publisher bound to ch.
func NewPublisher(ch *amqp.Channel) *Publisher {
	return &Publisher{ch: ch}
}

// Publish sends body to ExchangeTasks under routingKey with the given
// headers and priority, using the persistent delivery mode so the broker
// stores the message on disk. The channel is not in confirm mode, so
// Publish does not wait for the broker to acknowledge the message.
func (p *Publisher) Publish(ctx context.Context, routingKey string, body []byte, headers amqp.Table, priority uint8) error {
	err := p.ch.PublishWithContext(ctx, ExchangeTasks, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Priority:     priority,
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", routingKey, err)
	}
	return nil
}

// Retry republishes the original delivery body to the same routing key,
// with the x-retry-count header incremented. It is acked by the caller
// immediately after this succeeds so the broker does not also redeliver
// the original message.
func (p *Publisher) Retry(ctx context.Context, routingKey string, body []byte, nextHeaders amqp.Table, priority uint8) error {
	return p.Publish(ctx, routingKey, body, nextHeaders, priority)
}
