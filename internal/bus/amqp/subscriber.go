package amqp

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/brightleaf/certforge/internal/common"
	"github.com/brightleaf/certforge/internal/interfaces"
)

// Subscriber consumes from a durable, subject-named queue bound to the
// service's topic exchange.
type Subscriber struct {
	conn   *Connection
	logger *common.Logger
}

// NewSubscriber constructs a Subscriber over an established connection.
func NewSubscriber(conn *Connection, logger *common.Logger) *Subscriber {
	return &Subscriber{conn: conn, logger: logger}
}

// Subscribe declares a durable queue bound to subject and delivers each
// message's body to handler. The reply callback publishes directly to the
// message's ReplyTo routing key when the bus sets one (request/reply
// queries); it is a no-op otherwise. Subscribe blocks until ctx is
// canceled.
func (s *Subscriber) Subscribe(ctx context.Context, subject string, handler func(ctx context.Context, payload []byte, reply func(ctx context.Context, payload []byte) error) error) error {
	s.conn.mu.Lock()
	ch := s.conn.ch
	s.conn.mu.Unlock()

	queueName := "certforge." + subject
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue for subject %s: %w", subject, err)
	}
	if err := ch.QueueBind(queueName, subject, exchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue to subject %s: %w", subject, err)
	}

	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming subject %s: %w", subject, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			s.handleDelivery(ctx, subject, d, handler)
		}
	}
}

func (s *Subscriber) handleDelivery(ctx context.Context, subject string, d amqp.Delivery, handler func(ctx context.Context, payload []byte, reply func(ctx context.Context, payload []byte) error) error) {
	reply := func(ctx context.Context, payload []byte) error {
		if d.ReplyTo == "" {
			return nil
		}
		s.conn.mu.Lock()
		ch := s.conn.ch
		s.conn.mu.Unlock()
		return ch.PublishWithContext(ctx, "", d.ReplyTo, false, false, amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: d.CorrelationId,
			Body:          payload,
		})
	}

	if err := handler(ctx, d.Body, reply); err != nil {
		s.logger.Warn().Str("subject", subject).Err(err).Msg("subscriber handler failed")
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// Close releases the subscriber's underlying connection resources.
func (s *Subscriber) Close() error {
	return s.conn.Close()
}

var _ interfaces.Subscriber = (*Subscriber)(nil)
