package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hdlmesh/taskmesh/internal/contracts"
	"github.com/hdlmesh/taskmesh/internal/dedupe"
	"github.com/hdlmesh/taskmesh/internal/hooks"
	"github.com/hdlmesh/taskmesh/internal/taskmemory"
	"github.com/hdlmesh/taskmesh/internal/telemetry"
)

// pollInterval bounds how long the run loop waits for an incoming result
// before re-checking the DAG for newly ready nodes and for completion.
const pollInterval = 100 * time.Millisecond

// resultDeduper is satisfied by dedupe.Cache; declared locally so tests
// can stub it without importing the dedupe package's concrete types.
type resultDeduper interface {
	SeenAndMark(ctx context.Context, taskID string, ttl time.Duration) (bool, error)
}

// Publisher is the subset of broker.Publisher the orchestrator needs to
// dispatch a node's next task.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte, headers amqp.Table, priority uint8) error
}

// ResultSource yields decoded Results as they arrive on the results queue.
type ResultSource interface {
	Results() <-chan contracts.Result
}

// Snapshot is a read-only view of every node's current state, safe to
// serialize for the status HTTP surface.
type Snapshot struct {
	Nodes map[string]NodeSnapshot `json:"nodes"`
}

// NodeSnapshot is one node's externally visible state.
type NodeSnapshot struct {
	ID    string    `json:"id"`
	State NodeState `json:"state"`
	Error string    `json:"error,omitempty"`
}

// Orchestrator drives one job's DAG to completion.
type Orchestrator struct {
	DAG       *DAG
	Publisher Publisher
	Results   ResultSource
	Memory    *taskmemory.Store
	Slots     *SlotTable
	Context   *ContextBuilder
	Dedupe    resultDeduper
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Hooks     hooks.Bus

	mu sync.RWMutex
}

// New constructs an Orchestrator with sane defaults for any collaborator
// left nil (an in-memory dedupe cache, a noop logger, and a fresh slot
// table), so callers can wire only what they need to override in tests.
func New(dag *DAG, pub Publisher, results ResultSource, memory *taskmemory.Store, design DesignContext) *Orchestrator {
	return &Orchestrator{
		DAG:       dag,
		Publisher: pub,
		Results:   results,
		Memory:    memory,
		Slots:     NewSlotTable(),
		Context:   &ContextBuilder{Design: design, Memory: memory},
		Dedupe:    dedupe.NewInMemoryCache(),
		Logger:    telemetry.NewNoopLogger(),
	}
}

// Run drives the DAG until every node reaches a terminal state or ctx is
// canceled. It dispatches newly ready nodes, waits up to pollInterval for
// an incoming Result, and re-polls for readiness and completion on every
// tick, matching the orchestrator's single polling loop.
func (o *Orchestrator) Run(ctx context.Context) (Snapshot, error) {
	for {
		if err := o.dispatchReady(ctx); err != nil {
			return o.Snapshot(), err
		}
		if o.DAG.AllTerminal() {
			return o.Snapshot(), nil
		}

		select {
		case <-ctx.Done():
			return o.Snapshot(), ctx.Err()
		case result := <-o.Results.Results():
			o.handleResult(ctx, result)
		case <-time.After(pollInterval):
		}
	}
}

// Snapshot returns a point-in-time, lock-guarded copy of every node's
// externally visible state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	snap := Snapshot{Nodes: make(map[string]NodeSnapshot, len(o.DAG.Nodes))}
	for id, n := range o.DAG.Nodes {
		snap.Nodes[id] = NodeSnapshot{ID: id, State: n.State, Error: n.Error}
	}
	return snap
}

func (o *Orchestrator) dispatchReady(ctx context.Context) error {
	for _, id := range o.DAG.Ready() {
		o.mu.Lock()
		node := o.DAG.Nodes[id]
		if err := node.Transition(StateImplementing); err != nil {
			o.mu.Unlock()
			return err
		}
		o.mu.Unlock()
		if err := o.dispatchStage(ctx, node); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) dispatchStage(ctx context.Context, node *Node) error {
	stage, ok := nextStage(node.State)
	if !ok {
		return nil
	}
	taskCtx, err := o.Context.Build(node, stage)
	if err != nil {
		o.failNode(ctx, node, err.Error())
		return nil
	}

	class := entityClassFor(stage)
	kind := taskKindFor(stage)
	task := contracts.NewTask(node.ID, class, kind, node.ID, stage, contracts.PriorityMedium, taskCtx)

	body, err := json.Marshal(task)
	if err != nil {
		return err
	}
	if err := o.Publisher.Publish(ctx, task.RoutingKey(), body, nil, uint8(task.Priority)); err != nil {
		return err
	}
	o.Slots.Put(task.TaskID, Slot{NodeID: node.ID, Stage: stage})
	o.emit(ctx, hooks.EventTaskPublished, node.ID, task.TaskID, map[string]any{"stage": string(stage)})
	return nil
}

func (o *Orchestrator) handleResult(ctx context.Context, result contracts.Result) {
	if o.Dedupe != nil {
		seen, err := o.Dedupe.SeenAndMark(ctx, result.TaskID, time.Hour)
		if err == nil && seen {
			return
		}
	}

	slot, ok := o.Slots.Take(result.TaskID)
	if !ok {
		o.logger().Warn(ctx, "result for unknown or already-handled task id, dropping", "task_id", result.TaskID)
		return
	}

	o.mu.Lock()
	node := o.DAG.Nodes[slot.NodeID]
	o.mu.Unlock()
	if node == nil {
		return
	}

	if _, err := o.Memory.RecordLog(node.ID, string(slot.Stage), result.LogOutput); err != nil {
		o.logger().Error(ctx, "failed to record task memory log", "node_id", node.ID, "error", err.Error())
	}
	if result.ArtifactsPath != "" {
		_, _ = o.Memory.RecordArtifactPath(node.ID, string(slot.Stage), result.ArtifactsPath)
	}
	if result.ReflectionInsights != nil {
		_, _ = o.Memory.RecordJSON(node.ID, string(slot.Stage), "reflection_insights.json", result.ReflectionInsights)
	}
	if result.DistilledDataset != nil {
		_, _ = o.Memory.RecordJSON(node.ID, string(slot.Stage), "distilled_dataset.json", result.DistilledDataset)
	}

	o.emit(ctx, hooks.EventResultReceived, node.ID, result.TaskID, map[string]any{"status": string(result.Status), "stage": string(slot.Stage)})

	switch result.Status {
	case contracts.StatusSuccess:
		o.advance(ctx, node)
	case contracts.StatusEscalated:
		// Treated identically to FAILURE for state-machine purposes; the
		// status in the hook event above and the node's error text let an
		// external surface render it differently. No shipped handler emits it.
		o.failStage(ctx, node, "escalated to human")
	default:
		o.failStage(ctx, node, result.LogOutput)
	}
}

func (o *Orchestrator) advance(ctx context.Context, node *Node) {
	o.mu.Lock()
	old := node.State
	next := stateAfterSuccess(node)
	err := node.Transition(next)
	o.mu.Unlock()
	if err != nil {
		o.logger().Error(ctx, "illegal state transition on success", "node_id", node.ID, "error", err.Error())
		return
	}
	o.emit(ctx, hooks.EventNodeTransition, node.ID, "", map[string]any{"from": string(old), "to": string(next)})

	if node.State == StateFailed {
		o.DAG.CascadeFail(node.ID)
		return
	}
	if node.State.IsTerminal() {
		return
	}
	if err := o.dispatchStage(ctx, node); err != nil {
		o.logger().Error(ctx, "failed to dispatch next stage", "node_id", node.ID, "error", err.Error())
	}
}

func (o *Orchestrator) failStage(ctx context.Context, node *Node, reason string) {
	o.mu.Lock()
	old := node.State
	next := stateAfterFailure(node)
	err := node.Transition(next)
	node.Error = reason
	o.mu.Unlock()
	if err != nil {
		o.logger().Error(ctx, "illegal state transition on failure", "node_id", node.ID, "error", err.Error())
		return
	}
	o.emit(ctx, hooks.EventNodeTransition, node.ID, "", map[string]any{"from": string(old), "to": string(next), "reason": reason})

	if node.State == StateFailed {
		o.DAG.CascadeFail(node.ID)
		if o.Metrics != nil {
			o.Metrics.IncCounter("node_failed", 1)
		}
		return
	}
	if err := o.dispatchStage(ctx, node); err != nil {
		o.logger().Error(ctx, "failed to dispatch failure-chain stage", "node_id", node.ID, "error", err.Error())
	}
}

func (o *Orchestrator) failNode(ctx context.Context, node *Node, reason string) {
	o.mu.Lock()
	node.State = StateFailed
	node.Error = reason
	o.mu.Unlock()
	o.DAG.CascadeFail(node.ID)
	o.emit(ctx, hooks.EventNodeTransition, node.ID, "", map[string]any{"to": string(StateFailed), "reason": reason})
}

func (o *Orchestrator) emit(ctx context.Context, eventType hooks.EventType, nodeID, taskID string, payload map[string]any) {
	if o.Hooks == nil {
		return
	}
	_ = o.Hooks.Publish(ctx, hooks.Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		TaskID:    taskID,
		Payload:   payload,
	})
}

func (o *Orchestrator) logger() telemetry.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return telemetry.NewNoopLogger()
}
