// Package orchestrator drives a single job's DAG of nodes through their
// ten-state lifecycle, correlating published tasks to incoming results,
// cascading failures to dependents, and chaining a simulation failure
// through distill -> reflect -> debug.
package orchestrator

import (
	"fmt"

	"github.com/hdlmesh/taskmesh/internal/contracts"
)

// NodeState is a node's position in its per-node lifecycle.
type NodeState string

const (
	StatePending      NodeState = "PENDING"
	StateImplementing NodeState = "IMPLEMENTING"
	StateLinting      NodeState = "LINTING"
	StateTestbenching NodeState = "TESTBENCHING"
	StateSimulating   NodeState = "SIMULATING"
	StateDistilling   NodeState = "DISTILLING"
	StateReflecting   NodeState = "REFLECTING"
	StateDebugging    NodeState = "DEBUGGING"
	StateDone         NodeState = "DONE"
	StateFailed       NodeState = "FAILED"
)

// allowedTransitions enumerates every legal next state for a given state.
// PENDING -> FAILED is the cascade path: a still-PENDING node whose
// upstream dependency failed is transitioned directly to FAILED, never run.
var allowedTransitions = map[NodeState]map[NodeState]bool{
	StatePending:      {StateImplementing: true, StateFailed: true},
	StateImplementing: {StateLinting: true, StateFailed: true},
	StateLinting:      {StateTestbenching: true, StateFailed: true},
	StateTestbenching: {StateSimulating: true, StateFailed: true},
	StateSimulating:   {StateDistilling: true, StateDone: true, StateFailed: true},
	StateDistilling:   {StateReflecting: true, StateFailed: true},
	StateReflecting:   {StateDebugging: true, StateDone: true, StateFailed: true},
	StateDebugging:    {StateFailed: true},
}

// IsTerminal reports whether s is a terminal state the scheduler treats as
// "no further work for this node".
func (s NodeState) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// Node tracks a single DAG node's identity, dependencies, and current
// lifecycle state.
type Node struct {
	ID           string
	Dependencies []string
	State        NodeState
	Error        string
	// SimFailed records whether this node's SIMULATING stage ended in
	// FAILURE, which is what licenses REFLECTING's success to advance to
	// DEBUGGING instead of terminating the node as DONE.
	SimFailed bool
}

// Transition moves n to next if the transition is legal, returning an
// error otherwise.
func (n *Node) Transition(next NodeState) error {
	allowed, ok := allowedTransitions[n.State]
	if !ok || !allowed[next] {
		return fmt.Errorf("illegal transition %s -> %s for node %s", n.State, next, n.ID)
	}
	n.State = next
	return nil
}

// nextStage returns the Stage a node's current state corresponds to
// publishing, and whether that state has an associated stage to run (DONE
// and FAILED do not).
func nextStage(state NodeState) (contracts.Stage, bool) {
	switch state {
	case StateImplementing:
		return contracts.StageImpl, true
	case StateLinting:
		return contracts.StageLint, true
	case StateTestbenching:
		return contracts.StageTestbench, true
	case StateSimulating:
		return contracts.StageSimulate, true
	case StateDistilling:
		return contracts.StageDistill, true
	case StateReflecting:
		return contracts.StageReflect, true
	case StateDebugging:
		return contracts.StageDebug, true
	default:
		return "", false
	}
}

// stateAfterSuccess returns the state a node advances to after its current
// stage succeeds.
func stateAfterSuccess(n *Node) NodeState {
	switch n.State {
	case StatePending:
		return StateImplementing
	case StateImplementing:
		return StateLinting
	case StateLinting:
		return StateTestbenching
	case StateTestbenching:
		return StateSimulating
	case StateSimulating:
		return StateDone
	case StateDistilling:
		return StateReflecting
	case StateReflecting:
		if n.SimFailed {
			return StateDebugging
		}
		return StateDone
	case StateDebugging:
		return StateFailed
	default:
		return n.State
	}
}

// stateAfterFailure returns the state a node moves to after its current
// stage fails. A SIMULATING failure is the one case that does not cascade
// immediately: it chains into DISTILLING -> REFLECTING -> DEBUGGING so the
// failure can be analyzed and a fix attempted, with the node only reaching
// FAILED once DEBUGGING's own result comes back (success or failure).
// Every other stage's failure fails the node immediately.
func stateAfterFailure(n *Node) NodeState {
	if n.State == StateSimulating {
		n.SimFailed = true
		return StateDistilling
	}
	return StateFailed
}
