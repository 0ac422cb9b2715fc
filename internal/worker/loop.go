package worker

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hdlmesh/taskmesh/internal/contracts"
	"github.com/hdlmesh/taskmesh/internal/hooks"
	"github.com/hdlmesh/taskmesh/internal/retry"
	"github.com/hdlmesh/taskmesh/internal/telemetry"
)

type (
	// Delivery is the subset of an AMQP delivery the loop needs. It is an
	// interface so the loop can be tested without a live broker.
	Delivery interface {
		Body() []byte
		Headers() amqp.Table
		Ack() error
		Reject(requeue bool) error
	}

	// Source yields deliveries for the loop to process.
	Source interface {
		Deliveries() <-chan Delivery
	}

	// Sink publishes outgoing messages: retried tasks back onto their
	// original routing key, and results onto the results routing key.
	Sink interface {
		Publish(ctx context.Context, routingKey string, body []byte, headers amqp.Table, priority uint8) error
	}
)

// Loop owns the decode -> dispatch -> classify -> retry-or-publish -> ack
// sequence for a single queue. Parallelism across a deployment comes from
// running multiple Loop instances, each processing one delivery at a time.
type Loop struct {
	Source   Source
	Sink     Sink
	Registry Registry
	Policy   retry.Policy
	Logger   telemetry.Logger
	Metrics  telemetry.Metrics
	Hooks    hooks.Bus
}

// Run processes deliveries until ctx is canceled or the source's delivery
// channel closes.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-l.Source.Deliveries():
			if !ok {
				return nil
			}
			l.process(ctx, d)
		}
	}
}

func (l *Loop) process(ctx context.Context, d Delivery) {
	logger := l.loggerOrNoop()

	var task contracts.Task
	if err := json.Unmarshal(d.Body(), &task); err != nil {
		logger.Error(ctx, "failed to decode task, dead-lettering", "error", err.Error())
		l.deadLetter(ctx, d, "decode failure")
		return
	}
	if err := contracts.Validate(task); err != nil {
		logger.Error(ctx, "task failed schema validation, dead-lettering", "task_id", task.TaskID, "error", err.Error())
		l.deadLetter(ctx, d, err.Error())
		return
	}

	handler, ok := l.Registry.Lookup(task.TaskKind)
	if !ok {
		logger.Warn(ctx, "no handler registered for task kind, requeuing for a peer worker", "task_id", task.TaskID, "task_kind", string(task.TaskKind))
		_ = d.Reject(true)
		return
	}

	result, err := handler(ctx, task)
	if err != nil {
		l.handleError(ctx, d, task, err)
		return
	}

	l.publishResult(ctx, d, result)
}

func (l *Loop) handleError(ctx context.Context, d Delivery, task contracts.Task, err error) {
	logger := l.loggerOrNoop()
	class := retry.Classify(err)

	if class == retry.ClassInput {
		logger.Error(ctx, "permanent input error, dead-lettering", "task_id", task.TaskID, "error", err.Error())
		l.deadLetter(ctx, d, err.Error())
		return
	}

	if class == retry.ClassTransient {
		retryCount := retry.RetryCount(headerMap(d.Headers()))
		if l.Policy.ShouldRetry(retryCount) {
			nextHeaders := retry.NextHeaders(headerMap(d.Headers()))
			if pubErr := l.Sink.Publish(ctx, task.RoutingKey(), d.Body(), toAMQPTable(nextHeaders), 0); pubErr != nil {
				logger.Error(ctx, "failed to republish for retry", "task_id", task.TaskID, "error", pubErr.Error())
				l.deadLetter(ctx, d, pubErr.Error())
				return
			}
			l.emit(ctx, hooks.EventTaskRetried, task.NodeID, task.TaskID, map[string]any{"retry_count": retryCount + 1})
			if l.Metrics != nil {
				l.Metrics.IncCounter("task_retried", 1, "task_kind", string(task.TaskKind))
			}
			_ = d.Ack()
			return
		}
		logger.Error(ctx, "retry ceiling exceeded, dead-lettering", "task_id", task.TaskID)
		l.deadLetter(ctx, d, "retry ceiling exceeded")
		return
	}

	result := contracts.NewResult(task, contracts.StatusFailure, err.Error())
	l.publishResult(ctx, d, result)
}

func (l *Loop) publishResult(ctx context.Context, d Delivery, result contracts.Result) {
	logger := l.loggerOrNoop()
	body, err := json.Marshal(result)
	if err != nil {
		logger.Error(ctx, "failed to encode result, dead-lettering", "task_id", result.TaskID, "error", err.Error())
		l.deadLetter(ctx, d, err.Error())
		return
	}
	if err := l.Sink.Publish(ctx, string(contracts.ClassResults), body, nil, 0); err != nil {
		logger.Error(ctx, "failed to publish result", "task_id", result.TaskID, "error", err.Error())
		_ = d.Reject(true)
		return
	}
	l.emit(ctx, hooks.EventResultReceived, result.NodeID, result.TaskID, map[string]any{"status": string(result.Status)})
	_ = d.Ack()
}

func (l *Loop) deadLetter(ctx context.Context, d Delivery, reason string) {
	l.emit(ctx, hooks.EventTaskDeadLettered, "", "", map[string]any{"reason": reason})
	if l.Metrics != nil {
		l.Metrics.IncCounter("task_dead_lettered", 1)
	}
	_ = d.Reject(false)
}

func (l *Loop) emit(ctx context.Context, eventType hooks.EventType, nodeID, taskID string, payload map[string]any) {
	if l.Hooks == nil {
		return
	}
	_ = l.Hooks.Publish(ctx, hooks.Event{Type: eventType, NodeID: nodeID, TaskID: taskID, Payload: payload})
}

func (l *Loop) loggerOrNoop() telemetry.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return telemetry.NewNoopLogger()
}

func headerMap(t amqp.Table) map[string]any {
	m := make(map[string]any, len(t))
	for k, v := range t {
		m[k] = v
	}
	return m
}

func toAMQPTable(m map[string]any) amqp.Table {
	t := make(amqp.Table, len(m))
	for k, v := range m {
		t[k] = v
	}
	return t
}
