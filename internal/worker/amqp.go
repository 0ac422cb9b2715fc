package worker

import amqp "github.com/rabbitmq/amqp091-go"

// amqpDelivery adapts an amqp091-go Delivery to the Delivery interface.
type amqpDelivery struct {
	d amqp.Delivery
}

// NewAMQPDelivery wraps a raw AMQP delivery for use with Loop.
func NewAMQPDelivery(d amqp.Delivery) Delivery { return amqpDelivery{d: d} }

func (a amqpDelivery) Body() []byte        { return a.d.Body }
func (a amqpDelivery) Headers() amqp.Table { return a.d.Headers }
func (a amqpDelivery) Ack() error          { return a.d.Ack(false) }
func (a amqpDelivery) Reject(requeue bool) error { return a.d.Reject(requeue) }

// amqpSource adapts a raw amqp091-go delivery channel to the Source
// interface expected by Loop.
type amqpSource struct {
	ch <-chan Delivery
}

// NewAMQPSource wraps raw is a channel of amqp091-go deliveries, converting
// each to the Delivery interface as it is read.
func NewAMQPSource(raw <-chan amqp.Delivery) Source {
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for d := range raw {
			out <- NewAMQPDelivery(d)
		}
	}()
	return amqpSource{ch: out}
}

func (s amqpSource) Deliveries() <-chan Delivery { return s.ch }

// Note: *broker.Publisher already satisfies the Sink interface directly
// (identical Publish signature), so no adapter type is needed for it.
