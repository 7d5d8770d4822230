package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/spec-kit/agentic-support/internal/persistence"
)

// amqpBroker publishes job ids to a durable RabbitMQ queue through the default
// exchange and consumes them with manual acknowledgements.
type amqpBroker struct {
	conn        *persistence.AMQP
	consumerTag string
	prefetch    int

	once       sync.Once
	deliveries <-chan amqp.Delivery
	consumeErr error
}

// NewAMQPBroker wraps an established connection. consumerTag identifies this
// process to RabbitMQ when it consumes; prefetch bounds the deliveries held
// unacknowledged and should match the number of goroutines calling Next.
func NewAMQPBroker(conn *persistence.AMQP, consumerTag string, prefetch int) Broker {
	if prefetch < 1 {
		prefetch = 1
	}
	return &amqpBroker{conn: conn, consumerTag: consumerTag, prefetch: prefetch}
}

func (b *amqpBroker) Publish(ctx context.Context, jobID string) error {
	return b.conn.Channel.PublishWithContext(ctx,
		"",           // default exchange
		b.conn.Queue, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "text/plain",
			Body:         []byte(jobID),
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

func (b *amqpBroker) Next(ctx context.Context, timeout time.Duration) (Delivery, error) {
	b.once.Do(func() {
		if err := b.conn.Channel.Qos(b.prefetch, 0, false); err != nil {
			b.consumeErr = fmt.Errorf("set qos: %w", err)
			return
		}
		b.deliveries, b.consumeErr = b.conn.Channel.Consume(
			b.conn.Queue,  // queue
			b.consumerTag, // consumer
			false,         // auto-ack
			false,         // exclusive
			false,         // no-local
			false,         // no-wait
			nil,           // args
		)
	})
	if b.consumeErr != nil {
		return nil, b.consumeErr
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrNoDelivery
	case d, ok := <-b.deliveries:
		if !ok {
			return nil, errors.New("rabbitmq delivery channel closed")
		}
		return &amqpDelivery{d: d}, nil
	}
}

func (b *amqpBroker) Ping(context.Context) error {
	return b.conn.Ping()
}

type amqpDelivery struct {
	d amqp.Delivery
}

func (d *amqpDelivery) JobID() string {
	return string(d.d.Body)
}

func (d *amqpDelivery) Ack(context.Context) error {
	return d.d.Ack(false)
}

func (d *amqpDelivery) Requeue(context.Context) error {
	return d.d.Nack(false, true)
}
