// Package handlers implements the concrete Task handlers registered into a
// worker's dispatch table: deterministic subprocess-backed lint/simulate
// handlers and LLM-backed reasoning handlers.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hdlmesh/taskmesh/internal/contracts"
	"github.com/hdlmesh/taskmesh/internal/retry"
)

// subprocessInput is the expected shape of Task.Context for the lint and
// simulate handlers: a path to the design artifact the external tool
// should operate on, plus opaque tool arguments.
type subprocessInput struct {
	DesignPath string   `json:"design_path"`
	Args       []string `json:"args"`
}

// DeterministicConfig configures a subprocess-backed handler. Command is
// the external lint/simulation tool; its actual behavior is intentionally
// opaque to this worker, which only captures its exit code and output.
type DeterministicConfig struct {
	Command string
}

// NewLintHandler returns a Handler that shells out to cfg.Command with the
// design path from the task's context, for LIGHT_DETERMINISTIC lint tasks.
func NewLintHandler(cfg DeterministicConfig) func(ctx context.Context, task contracts.Task) (contracts.Result, error) {
	return newSubprocessHandler(cfg)
}

// NewSimulateHandler returns a Handler that shells out to cfg.Command for
// HEAVY_DETERMINISTIC simulation tasks.
func NewSimulateHandler(cfg DeterministicConfig) func(ctx context.Context, task contracts.Task) (contracts.Result, error) {
	return newSubprocessHandler(cfg)
}

// distillInput is the expected shape of Task.Context for the distill
// handler: the node id and the prior simulation log the context builder
// carried over as prior_artifact.
type distillInput struct {
	NodeID        string `json:"node_id"`
	PriorArtifact string `json:"prior_artifact"`
}

// distilledDataset mirrors a simulation failure log's mechanical
// reduction to a bounded excerpt, not an LLM summarization.
type distilledDataset struct {
	NodeID            string   `json:"node_id"`
	LogExcerpt        string   `json:"log_excerpt"`
	OriginalDataSize  int      `json:"original_data_size"`
	DistilledDataSize int      `json:"distilled_data_size"`
	CompressionRatio  float64  `json:"compression_ratio"`
	FailureFocusAreas []string `json:"failure_focus_areas"`
}

// distillExcerptLines bounds how many leading lines of a simulation log
// survive distillation.
const distillExcerptLines = 40

// NewDistillHandler returns a Handler that mechanically reduces a
// simulation failure log to a bounded excerpt, for LIGHT_DETERMINISTIC
// distill tasks: no LLM call, matching the rest of the process queue.
func NewDistillHandler() func(ctx context.Context, task contracts.Task) (contracts.Result, error) {
	return func(ctx context.Context, task contracts.Task) (contracts.Result, error) {
		var input distillInput
		if err := json.Unmarshal(task.Context, &input); err != nil {
			return contracts.Result{}, retry.NewInputError(fmt.Errorf("decode context: %w", err))
		}
		if input.PriorArtifact == "" {
			return contracts.Result{}, retry.NewInputError(fmt.Errorf("context.prior_artifact is required"))
		}

		lines := strings.Split(input.PriorArtifact, "\n")
		if len(lines) > distillExcerptLines {
			lines = lines[:distillExcerptLines]
		}
		excerpt := strings.Join(lines, "\n")

		originalSize := len(input.PriorArtifact)
		distilledSize := len(excerpt)
		ratio := 0.0
		if distilledSize > 0 {
			ratio = float64(originalSize) / float64(distilledSize)
		}

		dataset := distilledDataset{
			NodeID:            input.NodeID,
			LogExcerpt:        excerpt,
			OriginalDataSize:  originalSize,
			DistilledDataSize: distilledSize,
			CompressionRatio:  ratio,
			FailureFocusAreas: []string{"sim_log"},
		}
		datasetJSON, err := json.Marshal(dataset)
		if err != nil {
			return contracts.Result{}, fmt.Errorf("marshal distilled dataset: %w", err)
		}

		result := contracts.NewResult(task, contracts.StatusSuccess, "Distillation complete.")
		result.DistilledDataset = datasetJSON
		return result, nil
	}
}

func newSubprocessHandler(cfg DeterministicConfig) func(ctx context.Context, task contracts.Task) (contracts.Result, error) {
	return func(ctx context.Context, task contracts.Task) (contracts.Result, error) {
		var input subprocessInput
		if err := json.Unmarshal(task.Context, &input); err != nil {
			return contracts.Result{}, retry.NewInputError(fmt.Errorf("decode context: %w", err))
		}
		if input.DesignPath == "" {
			return contracts.Result{}, retry.NewInputError(fmt.Errorf("context.design_path is required"))
		}

		args := append([]string{input.DesignPath}, input.Args...)
		cmd := exec.CommandContext(ctx, cfg.Command, args...)
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out

		runErr := cmd.Run()
		log := out.String()

		if runErr != nil {
			if retry.ClassifyText(log) || retry.ClassifyText(runErr.Error()) {
				return contracts.Result{}, retry.NewRetryableError(fmt.Errorf("%s: %w", cfg.Command, runErr))
			}
			return contracts.NewResult(task, contracts.StatusFailure, log), nil
		}
		result := contracts.NewResult(task, contracts.StatusSuccess, log)
		result.ArtifactsPath = input.DesignPath
		return result, nil
	}
}
