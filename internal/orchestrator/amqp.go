package orchestrator

import (
	"encoding/json"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hdlmesh/taskmesh/internal/contracts"
)

// amqpResultSource decodes each delivery on the results queue into a
// contracts.Result and acks it once handed on. A malformed result can
// never be retried into validity, so it is logged and rejected without
// requeue; the results queue has no dead-letter exchange, so it is
// dropped rather than left to clog the queue.
type amqpResultSource struct {
	out chan contracts.Result
}

// NewAMQPResultSource adapts the results queue's raw delivery channel into
// a ResultSource, decoding and acking each delivery as it arrives.
func NewAMQPResultSource(deliveries <-chan amqp.Delivery) ResultSource {
	s := &amqpResultSource{out: make(chan contracts.Result)}
	go func() {
		defer close(s.out)
		for d := range deliveries {
			var result contracts.Result
			if err := json.Unmarshal(d.Body, &result); err != nil {
				log.Printf("discarding malformed result delivery: %v", err)
				_ = d.Reject(false)
				continue
			}
			s.out <- result
			_ = d.Ack(false)
		}
	}()
	return s
}

func (s *amqpResultSource) Results() <-chan contracts.Result { return s.out }
