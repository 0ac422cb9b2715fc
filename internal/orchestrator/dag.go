package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
)

// DesignContext is the job-scoped, immutable mapping from node id to its
// design record, produced once by the planning stage and consumed
// read-only by the orchestrator's context builder.
type DesignContext struct {
	SpecPath string                  `json:"spec_path"`
	Nodes    map[string]DesignRecord `json:"nodes"`
	Metadata json.RawMessage         `json:"metadata,omitempty"`
}

// DesignRecord carries one node's design inputs: the RTL and testbench
// source paths handlers operate on, plus the descriptive fields carried
// through to every task's context unchanged.
type DesignRecord struct {
	RTLPath        string          `json:"rtl_path"`
	TestbenchPath  string          `json:"testbench_path"`
	Interface      json.RawMessage `json:"interface,omitempty"`
	Clocking       json.RawMessage `json:"clocking,omitempty"`
	CoverageGoals  json.RawMessage `json:"coverage_goals,omitempty"`
	LibraryRefs    json.RawMessage `json:"library_refs,omitempty"`
	BehavioralNote string          `json:"behavioral_note,omitempty"`
	Verification   json.RawMessage `json:"verification,omitempty"`
	Acceptance     json.RawMessage `json:"acceptance,omitempty"`
}

// nodeSpec is the on-disk shape of a single DAG node definition.
type nodeSpec struct {
	ID           string   `json:"id"`
	Dependencies []string `json:"dependencies"`
}

// DAG is the full set of nodes for a job, indexed by id, plus the
// dependency graph derived from each node's Dependencies list.
type DAG struct {
	Nodes map[string]*Node
	// edges maps a node id to the ids of nodes that depend on it.
	edges map[string][]string
}

// LoadDAG reads a DAG definition from path: a JSON array of node specs,
// each naming its upstream dependencies by id.
func LoadDAG(path string) (*DAG, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dag file: %w", err)
	}
	var specs []nodeSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("decode dag file: %w", err)
	}
	return buildDAG(specs)
}

func buildDAG(specs []nodeSpec) (*DAG, error) {
	dag := &DAG{
		Nodes: make(map[string]*Node, len(specs)),
		edges: make(map[string][]string),
	}
	for _, spec := range specs {
		dag.Nodes[spec.ID] = &Node{ID: spec.ID, Dependencies: spec.Dependencies, State: StatePending}
	}
	for _, spec := range specs {
		for _, dep := range spec.Dependencies {
			if _, ok := dag.Nodes[dep]; !ok {
				return nil, fmt.Errorf("node %s depends on unknown node %s", spec.ID, dep)
			}
			dag.edges[dep] = append(dag.edges[dep], spec.ID)
		}
	}
	return dag, nil
}

// LoadDesignContext reads the shared design context document from path.
func LoadDesignContext(path string) (DesignContext, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return DesignContext{}, fmt.Errorf("read design context: %w", err)
	}
	var dc DesignContext
	if err := json.Unmarshal(raw, &dc); err != nil {
		return DesignContext{}, fmt.Errorf("decode design context: %w", err)
	}
	return dc, nil
}

// Ready returns the ids of every node whose dependencies have all reached
// DONE, and which is itself still PENDING.
func (d *DAG) Ready() []string {
	var ready []string
	for id, node := range d.Nodes {
		if node.State != StatePending {
			continue
		}
		if d.dependenciesDone(node) {
			ready = append(ready, id)
		}
	}
	return ready
}

func (d *DAG) dependenciesDone(n *Node) bool {
	for _, dep := range n.Dependencies {
		if d.Nodes[dep].State != StateDone {
			return false
		}
	}
	return true
}

// Dependents returns the ids of nodes that directly depend on id.
func (d *DAG) Dependents(id string) []string {
	return d.edges[id]
}

// AllTerminal reports whether every node in the DAG has reached a terminal
// state (DONE or FAILED).
func (d *DAG) AllTerminal() bool {
	for _, node := range d.Nodes {
		if !node.State.IsTerminal() {
			return false
		}
	}
	return true
}

// CascadeFail transitions every node reachable from failedID's dependents,
// that is still PENDING, directly to FAILED: it will never run, since one
// of its dependencies did not complete. It uses breadth-first traversal so
// a diamond-shaped dependency is only visited once.
func (d *DAG) CascadeFail(failedID string) {
	queue := []string{failedID}
	visited := map[string]bool{}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for _, depID := range d.Dependents(cur) {
			dep := d.Nodes[depID]
			if dep.State == StatePending {
				_ = dep.Transition(StateFailed)
				dep.Error = fmt.Sprintf("failed: upstream node %s did not complete", cur)
				queue = append(queue, depID)
			}
		}
	}
}
