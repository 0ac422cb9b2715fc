package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdlmesh/taskmesh/internal/contracts"
	"github.com/hdlmesh/taskmesh/internal/retry"
	"github.com/hdlmesh/taskmesh/internal/worker"
)

type fakeDelivery struct {
	body    []byte
	headers amqp.Table
	acked   *bool
	rejected *bool
	requeued *bool
}

func (d *fakeDelivery) Body() []byte        { return d.body }
func (d *fakeDelivery) Headers() amqp.Table { return d.headers }
func (d *fakeDelivery) Ack() error          { *d.acked = true; return nil }
func (d *fakeDelivery) Reject(requeue bool) error {
	*d.rejected = true
	*d.requeued = requeue
	return nil
}

func newFakeDelivery(t contracts.Task, headers amqp.Table) (*fakeDelivery, *bool, *bool, *bool) {
	body, _ := json.Marshal(t)
	acked, rejected, requeued := new(bool), new(bool), new(bool)
	return &fakeDelivery{body: body, headers: headers, acked: acked, rejected: rejected, requeued: requeued}, acked, rejected, requeued
}

type fakeSource struct {
	ch chan worker.Delivery
}

func (s *fakeSource) Deliveries() <-chan worker.Delivery { return s.ch }

type fakeSink struct {
	published []published
}

type published struct {
	routingKey string
	body       []byte
	headers    amqp.Table
}

func (s *fakeSink) Publish(_ context.Context, routingKey string, body []byte, headers amqp.Table, _ uint8) error {
	s.published = append(s.published, published{routingKey: routingKey, body: body, headers: headers})
	return nil
}

func runOne(t *testing.T, loop *worker.Loop, d worker.Delivery) {
	t.Helper()
	source := &fakeSource{ch: make(chan worker.Delivery, 1)}
	loop.Source = source
	source.ch <- d
	close(source.ch)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, loop.Run(ctx))
}

func TestLoopDispatchesToRegisteredHandlerAndPublishesSuccess(t *testing.T) {
	task := contracts.NewTask("c1", contracts.ClassLightDeterministic, contracts.TaskKindLint, "n1", contracts.StageLint, contracts.PriorityMedium, json.RawMessage(`{}`))
	d, acked, rejected, _ := newFakeDelivery(task, amqp.Table{})

	sink := &fakeSink{}
	loop := &worker.Loop{
		Sink:   sink,
		Policy: retry.Policy{MaxRetries: 1},
		Registry: worker.Registry{
			contracts.TaskKindLint: func(ctx context.Context, task contracts.Task) (contracts.Result, error) {
				return contracts.NewResult(task, contracts.StatusSuccess, "clean"), nil
			},
		},
	}
	runOne(t, loop, d)

	assert.True(t, *acked)
	assert.False(t, *rejected)
	require.Len(t, sink.published, 1)
	assert.Equal(t, "RESULTS", sink.published[0].routingKey)
}

func TestLoopRetriesTransientErrorThenAcks(t *testing.T) {
	task := contracts.NewTask("c1", contracts.ClassLightDeterministic, contracts.TaskKindLint, "n1", contracts.StageLint, contracts.PriorityMedium, json.RawMessage(`{}`))
	d, acked, rejected, _ := newFakeDelivery(task, amqp.Table{retry.HeaderRetryCount: int32(0)})

	sink := &fakeSink{}
	loop := &worker.Loop{
		Sink:   sink,
		Policy: retry.Policy{MaxRetries: 1},
		Registry: worker.Registry{
			contracts.TaskKindLint: func(ctx context.Context, task contracts.Task) (contracts.Result, error) {
				return contracts.Result{}, retry.NewRetryableError(errors.New("connection reset"))
			},
		},
	}
	runOne(t, loop, d)

	assert.True(t, *acked, "a retried message is acked after republish, not left for redelivery")
	assert.False(t, *rejected)
	require.Len(t, sink.published, 1)
	assert.Equal(t, "LIGHT_DETERMINISTIC", sink.published[0].routingKey)
	assert.EqualValues(t, 1, sink.published[0].headers[retry.HeaderRetryCount])
}

func TestLoopDeadLettersAfterRetryCeiling(t *testing.T) {
	task := contracts.NewTask("c1", contracts.ClassLightDeterministic, contracts.TaskKindLint, "n1", contracts.StageLint, contracts.PriorityMedium, json.RawMessage(`{}`))
	d, acked, rejected, requeued := newFakeDelivery(task, amqp.Table{retry.HeaderRetryCount: int32(1)})

	sink := &fakeSink{}
	loop := &worker.Loop{
		Sink:   sink,
		Policy: retry.Policy{MaxRetries: 1},
		Registry: worker.Registry{
			contracts.TaskKindLint: func(ctx context.Context, task contracts.Task) (contracts.Result, error) {
				return contracts.Result{}, retry.NewRetryableError(errors.New("connection reset"))
			},
		},
	}
	runOne(t, loop, d)

	assert.False(t, *acked)
	assert.True(t, *rejected)
	assert.False(t, *requeued, "dead-lettering must not requeue, it relies on the queue's DLX argument")
	assert.Empty(t, sink.published)
}

func TestLoopDeadLettersInputError(t *testing.T) {
	task := contracts.NewTask("c1", contracts.ClassLightDeterministic, contracts.TaskKindLint, "n1", contracts.StageLint, contracts.PriorityMedium, json.RawMessage(`{}`))
	d, _, rejected, requeued := newFakeDelivery(task, amqp.Table{})

	loop := &worker.Loop{
		Sink:   &fakeSink{},
		Policy: retry.Policy{MaxRetries: 1},
		Registry: worker.Registry{
			contracts.TaskKindLint: func(ctx context.Context, task contracts.Task) (contracts.Result, error) {
				return contracts.Result{}, retry.NewInputError(errors.New("missing design file"))
			},
		},
	}
	runOne(t, loop, d)

	assert.True(t, *rejected)
	assert.False(t, *requeued)
}

func TestLoopOtherErrorPublishesFailureResult(t *testing.T) {
	task := contracts.NewTask("c1", contracts.ClassLightDeterministic, contracts.TaskKindLint, "n1", contracts.StageLint, contracts.PriorityMedium, json.RawMessage(`{}`))
	d, acked, _, _ := newFakeDelivery(task, amqp.Table{})

	sink := &fakeSink{}
	loop := &worker.Loop{
		Sink:   sink,
		Policy: retry.Policy{MaxRetries: 1},
		Registry: worker.Registry{
			contracts.TaskKindLint: func(ctx context.Context, task contracts.Task) (contracts.Result, error) {
				return contracts.Result{}, errors.New("unexpected nil pointer")
			},
		},
	}
	runOne(t, loop, d)

	assert.True(t, *acked)
	require.Len(t, sink.published, 1)
	var result contracts.Result
	require.NoError(t, json.Unmarshal(sink.published[0].body, &result))
	assert.Equal(t, contracts.StatusFailure, result.Status)
}

func TestLoopRequeuesUnregisteredTaskKind(t *testing.T) {
	task := contracts.NewTask("c1", contracts.ClassLightDeterministic, contracts.TaskKind("unknown"), "n1", contracts.StageLint, contracts.PriorityMedium, json.RawMessage(`{}`))
	d, _, rejected, _ := newFakeDelivery(task, amqp.Table{})

	loop := &worker.Loop{Sink: &fakeSink{}, Policy: retry.Policy{MaxRetries: 1}, Registry: worker.Registry{}}
	runOne(t, loop, d)

	assert.True(t, *rejected)
}
