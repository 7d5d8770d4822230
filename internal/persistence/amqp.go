package persistence

import (
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	amqpHeartbeat     = 10 * time.Second
	amqpDialAttempts  = 3
	amqpRetryInterval = 2 * time.Second
)

// AMQP wraps a RabbitMQ connection and one channel with a declared durable queue.
type AMQP struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
	Queue   string
}

// NewAMQP dials url, opens a channel and declares queue as durable.
func NewAMQP(url, queue string, logger *zap.Logger) (*AMQP, error) {
	if url == "" {
		return nil, errors.New("AMQP_URL not provided")
	}

	var (
		conn *amqp.Connection
		err  error
	)
	for attempt := 1; attempt <= amqpDialAttempts; attempt++ {
		conn, err = amqp.DialConfig(url, amqp.Config{Heartbeat: amqpHeartbeat, Locale: "en_US"})
		if err == nil {
			break
		}
		logger.Warn("unable to reach rabbitmq", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < amqpDialAttempts {
			time.Sleep(amqpRetryInterval)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq after %d attempts: %w", amqpDialAttempts, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	logger.Info("connected to rabbitmq", zap.String("queue", queue))
	return &AMQP{Conn: conn, Channel: ch, Queue: queue}, nil
}

// Ping reports whether the connection and channel are still open.
func (a *AMQP) Ping() error {
	if a == nil || a.Conn == nil || a.Channel == nil {
		return errors.New("rabbitmq not configured")
	}
	if a.Conn.IsClosed() || a.Channel.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

// Close closes the channel and the connection.
func (a *AMQP) Close() {
	if a == nil {
		return
	}
	if a.Channel != nil {
		_ = a.Channel.Close()
	}
	if a.Conn != nil {
		_ = a.Conn.Close()
	}
}
