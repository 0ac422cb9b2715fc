package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/hdlmesh/taskmesh/internal/contracts"
)

// ContextBuilder assembles the Context payload for a node's next task:
// the shared design context, plus any artifacts or findings carried over
// from the node's own prior stage (distill/debug chains read the prior
// stage's output, not the design context alone).
type ContextBuilder struct {
	Design DesignContext
	Memory interface {
		ReadLog(nodeID, stage string) (string, error)
	}
}

// Build returns the JSON context for node's next stage, given stage.
func (b *ContextBuilder) Build(node *Node, stage contracts.Stage) (json.RawMessage, error) {
	payload := map[string]any{
		"spec_path": b.Design.SpecPath,
		"node_id":   node.ID,
	}
	if b.Design.Metadata != nil {
		payload["design_metadata"] = b.Design.Metadata
	}
	if record, ok := b.Design.Nodes[node.ID]; ok {
		// design_path is what the deterministic lint/simulate handlers
		// require in their context; the rest of the record rides along
		// for reasoning handlers that want the fuller design picture.
		payload["design_path"] = record.RTLPath
		payload["rtl_path"] = record.RTLPath
		payload["tb_path"] = record.TestbenchPath
		if record.Interface != nil {
			payload["interface"] = record.Interface
		}
		if record.Clocking != nil {
			payload["clocking"] = record.Clocking
		}
		if record.CoverageGoals != nil {
			payload["coverage_goals"] = record.CoverageGoals
		}
		if record.LibraryRefs != nil {
			payload["library_refs"] = record.LibraryRefs
		}
		if record.BehavioralNote != "" {
			payload["behavioral_note"] = record.BehavioralNote
		}
		if record.Verification != nil {
			payload["verification"] = record.Verification
		}
		if record.Acceptance != nil {
			payload["acceptance"] = record.Acceptance
		}
	}

	switch stage {
	case contracts.StageDistill:
		log, err := b.Memory.ReadLog(node.ID, string(contracts.StageSimulate))
		if err != nil {
			return nil, fmt.Errorf("read simulate log for distill context: %w", err)
		}
		payload["prompt"] = "Distill the following simulation failure log into structured findings."
		payload["prior_artifact"] = log
	case contracts.StageReflect:
		log, err := b.Memory.ReadLog(node.ID, string(contracts.StageDistill))
		if err != nil {
			return nil, fmt.Errorf("read distill log for reflect context: %w", err)
		}
		payload["prompt"] = "Reflect on the distilled findings and propose a fix direction."
		payload["prior_artifact"] = log
	case contracts.StageDebug:
		log, err := b.Memory.ReadLog(node.ID, string(contracts.StageReflect))
		if err != nil {
			return nil, fmt.Errorf("read reflect log for debug context: %w", err)
		}
		payload["prompt"] = "Implement a fix based on the prior reflection."
		payload["prior_artifact"] = log
	default:
		payload["prompt"] = fmt.Sprintf("Run the %s stage for node %s.", stage, node.ID)
	}

	return json.Marshal(payload)
}

// entityClassFor returns the routing class a stage's task should carry.
// Log-distillation is classified with the deterministic executors, not
// the reasoning ones: it mechanically extracts structured findings from a
// simulation log rather than exercising an LLM.
func entityClassFor(stage contracts.Stage) contracts.EntityClass {
	switch stage {
	case contracts.StageLint, contracts.StageDistill:
		return contracts.ClassLightDeterministic
	case contracts.StageSimulate:
		return contracts.ClassHeavyDeterministic
	default:
		return contracts.ClassReasoning
	}
}

// taskKindFor returns the task kind a stage's task should carry.
func taskKindFor(stage contracts.Stage) contracts.TaskKind {
	switch stage {
	case contracts.StageImpl:
		return contracts.TaskKindImplement
	case contracts.StageLint:
		return contracts.TaskKindLint
	case contracts.StageTestbench:
		return contracts.TaskKindTestbench
	case contracts.StageSimulate:
		return contracts.TaskKindSimulate
	case contracts.StageDistill:
		return contracts.TaskKindDistill
	case contracts.StageReflect:
		return contracts.TaskKindReflect
	case contracts.StageDebug:
		return contracts.TaskKindDebug
	default:
		return contracts.TaskKindPlan
	}
}
