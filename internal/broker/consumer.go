package broker

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer wraps a single-queue AMQP consumer with prefetch bounded to one
// in-flight delivery, so a worker instance processes exactly one task at a
// time; running more instances is how a deployment adds parallelism.
type Consumer struct {
	ch      *amqp.Channel
	queue   string
	tag     string
	deliveries <-chan amqp.Delivery
}

// NewConsumer sets channel QoS to a single unacknowledged message and
// begins consuming from queue.
func NewConsumer(ch *amqp.Channel, queue, consumerTag string) (*Consumer, error) {
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}
	return &Consumer{ch: ch, queue: queue, tag: consumerTag, deliveries: deliveries}, nil
}

// Deliveries returns the channel of incoming deliveries.
func (c *Consumer) Deliveries() <-chan amqp.Delivery { return c.deliveries }

// Ack acknowledges a single delivery.
func (c *Consumer) Ack(d amqp.Delivery) error {
	return d.Ack(false)
}

// Reject rejects a delivery. With requeue false the broker routes it to
// the dead-letter exchange via the queue's x-dead-letter-exchange
// argument; with requeue true it returns to the queue for another
// consumer.
func (c *Consumer) Reject(d amqp.Delivery, requeue bool) error {
	return d.Reject(requeue)
}

// Cancel stops consuming from the queue.
func (c *Consumer) Cancel() error {
	return c.ch.Cancel(c.tag, false)
}
