// Package amqp implements the Publisher/Subscriber interfaces against a
// RabbitMQ topic exchange: one exchange for the service, subject names
// mapped directly to routing keys, durable per-subject queues for
// subscribers.
package amqp

import (
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/brightleaf/certforge/internal/common"
)

const exchangeName = "certforge.events"

// Connection wraps a RabbitMQ connection and channel, reconnecting
// consumers is left to process restart per the spec's cancellation model
// (process shutdown is the only cancellation signal).
type Connection struct {
	url    string
	logger *common.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to RabbitMQ and declares the service's topic exchange.
func Dial(url string, logger *common.Logger) (*Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bus: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Connection{url: url, logger: logger, conn: conn, ch: ch}, nil
}

// Close tears down the channel and connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.ch != nil {
		if cerr := c.ch.Close(); cerr != nil {
			err = cerr
		}
	}
	if c.conn != nil {
		if cerr := c.conn.Close(); cerr != nil {
			err = cerr
		}
	}
	return err
}

// HealthCheck reports whether the underlying connection is open.
func (c *Connection) HealthCheck() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.conn.IsClosed()
}
