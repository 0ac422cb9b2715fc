// Package contracts defines the wire schemas shared by the orchestrator,
// the message broker, and every worker. A Task flows from the orchestrator
// to a worker; a Result flows back. Both are plain JSON documents so that
// a worker implemented in any language can participate, as long as it
// honors these field names.
package contracts

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type (
	// Priority is the execution priority carried on a Task. Higher values
	// are delivered first by a priority-aware queue.
	Priority int

	// Status is the outcome of a completed Task, carried on its Result.
	Status string

	// EntityClass distinguishes tasks routed to LLM-based reasoning agents
	// from tasks routed to deterministic workers. It doubles as the AMQP
	// routing key for everything except results.
	EntityClass string

	// TaskKind identifies the concrete handler that must process a Task.
	TaskKind string

	// Stage identifies which point in a node's lifecycle produced or
	// consumes a Task/Result.
	Stage string
)

const (
	PriorityLow    Priority = 1
	PriorityMedium Priority = 2
	PriorityHigh   Priority = 3

	StatusSuccess   Status = "SUCCESS"
	StatusFailure   Status = "FAILURE"
	StatusEscalated Status = "ESCALATED_TO_HUMAN"

	ClassReasoning         EntityClass = "REASONING"
	ClassLightDeterministic EntityClass = "LIGHT_DETERMINISTIC"
	ClassHeavyDeterministic EntityClass = "HEAVY_DETERMINISTIC"
	ClassResults            EntityClass = "RESULTS"

	TaskKindPlan        TaskKind = "plan"
	TaskKindImplement   TaskKind = "implement"
	TaskKindLint        TaskKind = "lint"
	TaskKindTestbench   TaskKind = "testbench"
	TaskKindSimulate    TaskKind = "simulate"
	TaskKindDistill     TaskKind = "distill"
	TaskKindReflect     TaskKind = "reflect"
	TaskKindDebug       TaskKind = "debug"
	TaskKindSpecHelper  TaskKind = "spec_helper"

	StagePlan       Stage = "plan"
	StageImpl       Stage = "implement"
	StageLint       Stage = "lint"
	StageTestbench  Stage = "testbench"
	StageSimulate   Stage = "simulate"
	StageDistill    Stage = "distill"
	StageReflect    Stage = "reflect"
	StageDebug      Stage = "debug"
)

// CostMetrics tracks LLM token usage and cost for a reasoning task result.
type CostMetrics struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Task is the unit of work published by the orchestrator and consumed by a
// worker. Context carries arbitrary handler-specific input and must survive
// a round trip through any decoder unmodified, including fields the
// receiving handler does not recognize.
type Task struct {
	TaskID        string          `json:"task_id"`
	CorrelationID string          `json:"correlation_id"`
	CreatedAt     time.Time       `json:"created_at"`
	Priority      Priority        `json:"priority"`
	EntityClass   EntityClass     `json:"entity_type"`
	TaskKind      TaskKind        `json:"task_type"`
	NodeID        string          `json:"node_id"`
	Stage         Stage           `json:"stage"`
	Context       json.RawMessage `json:"context"`
}

// Result is the unit of work returned by a worker to the orchestrator's
// results queue.
type Result struct {
	TaskID            string          `json:"task_id"`
	CorrelationID     string          `json:"correlation_id"`
	CompletedAt       time.Time       `json:"completed_at"`
	Status            Status          `json:"status"`
	NodeID            string          `json:"node_id"`
	Stage             Stage           `json:"stage"`
	ArtifactsPath     string          `json:"artifacts_path,omitempty"`
	LogOutput         string          `json:"log_output"`
	Reflections       string          `json:"reflections,omitempty"`
	Metrics           *CostMetrics    `json:"metrics,omitempty"`
	ReflectionInsights json.RawMessage `json:"reflection_insights,omitempty"`
	DistilledDataset   json.RawMessage `json:"distilled_dataset,omitempty"`
}

// NewTask constructs a Task with a freshly generated task id and a UTC
// creation timestamp. CorrelationID should be propagated from the node's
// originating task so every stage in a node's lifecycle can be traced as a
// single chain.
func NewTask(correlationID string, class EntityClass, kind TaskKind, nodeID string, stage Stage, priority Priority, ctx json.RawMessage) Task {
	return Task{
		TaskID:        uuid.NewString(),
		CorrelationID: correlationID,
		CreatedAt:     time.Now().UTC(),
		Priority:      priority,
		EntityClass:   class,
		TaskKind:      kind,
		NodeID:        nodeID,
		Stage:         stage,
		Context:       ctx,
	}
}

// NewResult constructs a Result for the given task, stamping the
// completion timestamp in UTC.
func NewResult(task Task, status Status, logOutput string) Result {
	return Result{
		TaskID:        task.TaskID,
		CorrelationID: task.CorrelationID,
		CompletedAt:   time.Now().UTC(),
		Status:        status,
		NodeID:        task.NodeID,
		Stage:         task.Stage,
		LogOutput:     logOutput,
	}
}

// RoutingKey returns the AMQP routing key this task should be published
// under: its entity class.
func (t Task) RoutingKey() string {
	return string(t.EntityClass)
}

// MarshalJSON encodes Priority as its integer value; provided explicitly so
// zero-value tasks still round-trip through json.Marshal without relying on
// the default int encoding changing shape later.
func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(p))
}

// UnmarshalJSON decodes Priority from its integer wire value.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("priority: %w", err)
	}
	*p = Priority(v)
	return nil
}
