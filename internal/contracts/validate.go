package contracts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schemas for the two wire messages. Validate rejects malformed structure
// (missing required fields, wrong types) but never rejects on unknown
// fields, per the requirement that receivers tolerate additions to Context
// and the reflection/distillation payloads.
const taskSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["task_id", "correlation_id", "entity_type", "task_type", "node_id", "stage"],
  "properties": {
    "task_id": {"type": "string", "minLength": 1},
    "correlation_id": {"type": "string", "minLength": 1},
    "entity_type": {"type": "string", "minLength": 1},
    "task_type": {"type": "string", "minLength": 1},
    "node_id": {"type": "string", "minLength": 1},
    "stage": {"type": "string", "minLength": 1}
  }
}`

const resultSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["task_id", "correlation_id", "status", "node_id", "stage", "log_output"],
  "properties": {
    "task_id": {"type": "string", "minLength": 1},
    "correlation_id": {"type": "string", "minLength": 1},
    "status": {"type": "string", "enum": ["SUCCESS", "FAILURE", "ESCALATED_TO_HUMAN"]},
    "node_id": {"type": "string", "minLength": 1},
    "stage": {"type": "string", "minLength": 1},
    "log_output": {"type": "string"}
  }
}`

var (
	compileOnce  sync.Once
	taskSchema   *jsonschema.Schema
	resultSchema *jsonschema.Schema
	compileErr   error
)

func compileSchemas() {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("task.json", mustJSON(taskSchemaJSON)); err != nil {
			compileErr = fmt.Errorf("compile task schema: %w", err)
			return
		}
		if err := c.AddResource("result.json", mustJSON(resultSchemaJSON)); err != nil {
			compileErr = fmt.Errorf("compile result schema: %w", err)
			return
		}
		taskSchema, compileErr = c.Compile("task.json")
		if compileErr != nil {
			return
		}
		resultSchema, compileErr = c.Compile("result.json")
	})
}

func mustJSON(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		panic(err)
	}
	return v
}

// Validate checks a Task against the structural schema. It is a baseline
// check only: a task that passes Validate may still be semantically
// invalid for the handler that receives it (e.g. a missing design file
// path embedded in Context), which handlers report as an InputError.
func Validate(task Task) error {
	compileSchemas()
	if compileErr != nil {
		return compileErr
	}
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode task: %w", err)
	}
	if err := taskSchema.Validate(doc); err != nil {
		return fmt.Errorf("task %s failed schema validation: %w", task.TaskID, err)
	}
	return nil
}

// ValidateResult checks a Result against the structural schema.
func ValidateResult(result Result) error {
	compileSchemas()
	if compileErr != nil {
		return compileErr
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	if err := resultSchema.Validate(doc); err != nil {
		return fmt.Errorf("result %s failed schema validation: %w", result.TaskID, err)
	}
	return nil
}
