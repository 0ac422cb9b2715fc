// Package runlog provides a durable, append-only event log for orchestrator
// runs: every node transition, task publish, and retry decision the hook
// bus raises can additionally be persisted here for after-the-fact run
// introspection, independent of the in-memory hook subscribers.
package runlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hdlmesh/taskmesh/internal/hooks"
)

type (
	// Event is a single immutable run event appended to the run log. Store
	// implementations assign ID when persisting the event.
	Event struct {
		// ID is the store-assigned opaque identifier for this event.
		ID string
		// RunID groups every event belonging to one job's DAG run.
		RunID string
		// NodeID is the DAG node the event concerns, empty for run-level
		// events that are not scoped to a single node.
		NodeID string
		// TaskID is the task the event concerns, when applicable.
		TaskID string
		// Type is the hook event type.
		Type hooks.EventType
		// Payload is the canonical JSON-encoded event payload.
		Payload json.RawMessage
		// Timestamp is the event time.
		Timestamp time.Time
	}

	// Page is a forward page of run events.
	Page struct {
		// Events are ordered oldest-first.
		Events []*Event
		// NextCursor is the cursor to use to fetch the next page. It is
		// empty when there are no further events.
		NextCursor string
	}

	// Store is an append-only event store for run introspection.
	//
	// Implementations must provide stable ordering within a run. Cursor
	// values are store-owned and opaque to callers.
	Store interface {
		// Append stores the event in the run log. Append must be durable:
		// failures are surfaced to callers so a run log subscriber can
		// decide whether to fail the run or merely log the loss.
		Append(ctx context.Context, e *Event) error

		// List returns the next forward page of events for runID. Cursor
		// is an opaque value returned by a previous call to List, or empty
		// to start from the beginning. Limit must be greater than zero.
		List(ctx context.Context, runID string, cursor string, limit int) (Page, error)
	}
)

// Subscriber adapts a Store into an hooks.Subscriber, so a run log can be
// wired onto the orchestrator's hook bus as just another subscriber: every
// published event is appended under runID, and an append failure is
// reported to OnFail (when set) rather than propagated, since the hook bus is synchronous and a
// run log outage should not stall the orchestrator's own processing.
type Subscriber struct {
	Store  Store
	RunID  string
	OnFail func(err error)
}

// HandleEvent implements hooks.Subscriber.
func (s Subscriber) HandleEvent(ctx context.Context, event hooks.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		payload = json.RawMessage("{}")
	}
	e := &Event{
		RunID:     s.RunID,
		NodeID:    event.NodeID,
		TaskID:    event.TaskID,
		Type:      event.Type,
		Payload:   payload,
		Timestamp: event.Timestamp,
	}
	if err := s.Store.Append(ctx, e); err != nil && s.OnFail != nil {
		s.OnFail(err)
	}
	return nil
}
