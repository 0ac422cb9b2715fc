package orchestrator

import (
	"fmt"
	"sync"

	"github.com/hdlmesh/taskmesh/internal/contracts"
)

// Slot records which node and stage an in-flight task id corresponds to,
// so an incoming Result (identified only by task id) can be matched back
// to the node whose lifecycle it advances.
type Slot struct {
	NodeID string
	Stage  contracts.Stage
}

// SlotTable is the orchestrator's correlation table. It is implemented as
// a single flattened map from task id to Slot, satisfying both the
// per-node and the fully-flattened representations with one structure:
// ForNode filters the same map by node id instead of maintaining a
// separate per-node index.
type SlotTable struct {
	mu    sync.Mutex
	slots map[string]Slot
}

// NewSlotTable constructs an empty SlotTable.
func NewSlotTable() *SlotTable {
	return &SlotTable{slots: make(map[string]Slot)}
}

// Put records that taskID corresponds to the given node/stage.
func (t *SlotTable) Put(taskID string, slot Slot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[taskID] = slot
}

// Take looks up and removes the slot for taskID. A Result is only ever
// matched once; a duplicate delivery (at-least-once broker semantics)
// finds no slot and is dropped by the caller.
func (t *SlotTable) Take(taskID string) (Slot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot, ok := t.slots[taskID]
	if ok {
		delete(t.slots, taskID)
	}
	return slot, ok
}

// ForNode returns every task id currently outstanding for nodeID.
func (t *SlotTable) ForNode(nodeID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []string
	for taskID, slot := range t.slots {
		if slot.NodeID == nodeID {
			ids = append(ids, taskID)
		}
	}
	return ids
}

// String renders a slot for logging.
func (s Slot) String() string {
	return fmt.Sprintf("%s/%s", s.NodeID, s.Stage)
}
