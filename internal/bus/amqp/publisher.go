package amqp

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/brightleaf/certforge/internal/common"
	"github.com/brightleaf/certforge/internal/interfaces"
	"github.com/brightleaf/certforge/internal/models"
)

// Publisher publishes event envelopes to the service's topic exchange,
// using the subject name directly as the routing key.
type Publisher struct {
	conn   *Connection
	logger *common.Logger
}

// NewPublisher constructs a Publisher over an established connection.
func NewPublisher(conn *Connection, logger *common.Logger) *Publisher {
	return &Publisher{conn: conn, logger: logger}
}

// Publish marshals envelope as JSON and publishes it with persistent
// delivery mode on the named subject.
func (p *Publisher) Publish(ctx context.Context, subject string, envelope *models.Envelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	p.conn.mu.Lock()
	ch := p.conn.ch
	p.conn.mu.Unlock()

	err = ch.PublishWithContext(ctx, exchangeName, subject, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}

	p.logger.Debug().Str("subject", subject).Str("event_id", envelope.EventID).Msg("published event")
	return nil
}

var _ interfaces.Publisher = (*Publisher)(nil)
