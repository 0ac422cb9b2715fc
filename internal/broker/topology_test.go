package broker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hdlmesh/taskmesh/internal/broker"
)

func TestTopologyNamesAreFixed(t *testing.T) {
	assert.Equal(t, "tasks_exchange", broker.ExchangeTasks)
	assert.Equal(t, "tasks_dlx", broker.ExchangeDLX)
	assert.Equal(t, "agent_tasks", broker.QueueAgentTasks)
	assert.Equal(t, "process_tasks", broker.QueueProcessTasks)
	assert.Equal(t, "simulation_tasks", broker.QueueSimulationTasks)
	assert.Equal(t, "results", broker.QueueResults)
	assert.Equal(t, "dead_letter_queue", broker.QueueDLQ)
}
