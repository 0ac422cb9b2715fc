package contracts_test

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdlmesh/taskmesh/internal/contracts"
)

func TestTaskRoundTrip(t *testing.T) {
	task := contracts.NewTask("corr-1", contracts.ClassLightDeterministic, contracts.TaskKindLint, "node-1", contracts.StageLint, contracts.PriorityMedium, json.RawMessage(`{"design_path":"/tmp/a.v"}`))

	raw, err := json.Marshal(task)
	require.NoError(t, err)

	var decoded contracts.Task
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, task.TaskID, decoded.TaskID)
	assert.Equal(t, task.CorrelationID, decoded.CorrelationID)
	assert.Equal(t, task.EntityClass, decoded.EntityClass)
	assert.Equal(t, task.TaskKind, decoded.TaskKind)
	assert.JSONEq(t, string(task.Context), string(decoded.Context))
	assert.NoError(t, contracts.Validate(decoded))
}

func TestTaskDecodeToleratesUnknownFields(t *testing.T) {
	raw := []byte(`{"task_id":"t1","correlation_id":"c1","entity_type":"REASONING","task_type":"plan","node_id":"n1","stage":"plan","context":{},"future_field":"kept-by-receivers-but-not-by-us"}`)

	var task contracts.Task
	require.NoError(t, json.Unmarshal(raw, &task))
	assert.Equal(t, "t1", task.TaskID)
	assert.NoError(t, contracts.Validate(task))
}

func TestValidateRejectsMissingRequiredFields(t *testing.T) {
	task := contracts.Task{}
	err := contracts.Validate(task)
	assert.Error(t, err)
}

func TestResultStatusRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	statuses := gen.OneConstOf(contracts.StatusSuccess, contracts.StatusFailure, contracts.StatusEscalated)

	properties.Property("result status survives a JSON round trip", prop.ForAll(
		func(status contracts.Status) bool {
			result := contracts.Result{
				TaskID:        "t1",
				CorrelationID: "c1",
				Status:        status,
				NodeID:        "n1",
				Stage:         contracts.StageSimulate,
				LogOutput:     "ok",
			}
			raw, err := json.Marshal(result)
			if err != nil {
				return false
			}
			var decoded contracts.Result
			if err := json.Unmarshal(raw, &decoded); err != nil {
				return false
			}
			return decoded.Status == status
		},
		statuses,
	))

	properties.TestingRun(t)
}
