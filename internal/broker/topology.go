// Package broker declares and drives the AMQP 0-9-1 topology shared by the
// orchestrator and every worker: a direct exchange routing tasks by entity
// class, a fanout dead-letter exchange, and the fixed set of durable queues
// named in the task-routing table.
package broker

import amqp "github.com/rabbitmq/amqp091-go"

const (
	ExchangeTasks = "tasks_exchange"
	ExchangeDLX   = "tasks_dlx"

	QueueAgentTasks      = "agent_tasks"
	QueueProcessTasks    = "process_tasks"
	QueueSimulationTasks = "simulation_tasks"
	QueueResults         = "results"
	QueueDLQ             = "dead_letter_queue"

	maxPriority = 3
)

// Declare idempotently declares the exchanges, queues, and bindings that
// make up the topology. It is safe to call on every process startup: AMQP
// declarations with identical arguments are no-ops on a queue/exchange
// that already exists.
func Declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(ExchangeTasks, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(ExchangeDLX, "fanout", true, false, false, false, nil); err != nil {
		return err
	}

	dlqArgs := amqp.Table{"x-dead-letter-exchange": ExchangeDLX}

	agentArgs := amqp.Table{
		"x-dead-letter-exchange": ExchangeDLX,
		"x-max-priority":         int32(maxPriority),
	}
	if _, err := ch.QueueDeclare(QueueAgentTasks, true, false, false, false, agentArgs); err != nil {
		return err
	}
	if err := ch.QueueBind(QueueAgentTasks, "REASONING", ExchangeTasks, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(QueueProcessTasks, true, false, false, false, dlqArgs); err != nil {
		return err
	}
	if err := ch.QueueBind(QueueProcessTasks, "LIGHT_DETERMINISTIC", ExchangeTasks, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(QueueSimulationTasks, true, false, false, false, dlqArgs); err != nil {
		return err
	}
	if err := ch.QueueBind(QueueSimulationTasks, "HEAVY_DETERMINISTIC", ExchangeTasks, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(QueueResults, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(QueueResults, "RESULTS", ExchangeTasks, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(QueueDLQ, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(QueueDLQ, "", ExchangeDLX, false, nil); err != nil {
		return err
	}

	return nil
}
