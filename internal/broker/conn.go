package broker

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Conn owns a single AMQP connection and the channel used to declare and
// drive the topology. Reconnection on a dropped connection is out of
// scope; a process that loses its broker connection exits and relies on
// its process supervisor to restart it.
type Conn struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial opens a connection and channel to the broker at url and declares
// the topology.
func Dial(url string) (*Conn, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := Declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare topology: %w", err)
	}
	return &Conn{conn: conn, ch: ch}, nil
}

// Channel returns the underlying AMQP channel.
func (c *Conn) Channel() *amqp.Channel { return c.ch }

// Close closes the channel and connection.
func (c *Conn) Close() error {
	if err := c.ch.Close(); err != nil {
		c.conn.Close()
		return err
	}
	return c.conn.Close()
}
