package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hdlmesh/taskmesh/internal/contracts"
	"github.com/hdlmesh/taskmesh/internal/llmclient"
	"github.com/hdlmesh/taskmesh/internal/retry"
)

// reasoningInput is the expected shape of Task.Context for every
// REASONING task kind: a free-form prompt payload plus the prior stage's
// artifacts, when relevant (reflect/debug chains).
type reasoningInput struct {
	Prompt        string          `json:"prompt"`
	PriorArtifact string          `json:"prior_artifact,omitempty"`
	Extra         json.RawMessage `json:"extra,omitempty"`
}

// promptTemplates gives each reasoning task kind a distinct system prompt
// prefix. The LLM call itself is identical for every kind; only framing
// differs.
var promptTemplates = map[contracts.TaskKind]string{
	contracts.TaskKindPlan:       "You are the planning stage of a hardware design pipeline.",
	contracts.TaskKindImplement:  "You are the implementation stage of a hardware design pipeline.",
	contracts.TaskKindTestbench:  "You are the testbench-authoring stage of a hardware design pipeline.",
	contracts.TaskKindReflect:    "You are reflecting on a distilled failure to propose a fix direction.",
	contracts.TaskKindDebug:      "You are implementing a fix based on a prior reflection.",
	contracts.TaskKindSpecHelper: "You are assisting a user in refining a design specification.",
}

// NewReasoningHandler returns a Handler that dispatches every REASONING
// task kind through client, using the task kind to select a prompt
// template. The request carries only the prompt and prior artifact from
// the task's context; the node id is not sent.
func NewReasoningHandler(client llmclient.Client) func(ctx context.Context, task contracts.Task) (contracts.Result, error) {
	return func(ctx context.Context, task contracts.Task) (contracts.Result, error) {
		var input reasoningInput
		if err := json.Unmarshal(task.Context, &input); err != nil {
			return contracts.Result{}, retry.NewInputError(fmt.Errorf("decode context: %w", err))
		}

		template, ok := promptTemplates[task.TaskKind]
		if !ok {
			return contracts.Result{}, retry.NewInputError(fmt.Errorf("no prompt template for task kind %q", task.TaskKind))
		}

		req := llmclient.Request{
			System:        template,
			Prompt:        input.Prompt,
			PriorArtifact: input.PriorArtifact,
		}
		resp, err := client.Complete(ctx, req)
		if err != nil {
			return contracts.Result{}, err
		}

		result := contracts.NewResult(task, contracts.StatusSuccess, resp.Text)
		result.Metrics = &contracts.CostMetrics{
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			CostUSD:      resp.CostUSD,
		}
		if task.TaskKind == contracts.TaskKindReflect {
			insights, err := json.Marshal(map[string]string{"text": resp.Text})
			if err != nil {
				return contracts.Result{}, fmt.Errorf("marshal reflection insights: %w", err)
			}
			result.ReflectionInsights = insights
			result.Reflections = resp.Text
		}
		return result, nil
	}
}
