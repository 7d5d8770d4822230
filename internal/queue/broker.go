package queue

import (
	"context"
	"errors"
	"time"
)

// ErrNoDelivery is returned by Broker.Next when nothing arrived before the timeout.
var ErrNoDelivery = errors.New("no delivery")

// Delivery is one job id handed to a consumer. Exactly one of Ack or Requeue
// must be called once the consumer is done with it.
type Delivery interface {
	JobID() string
	Ack(ctx context.Context) error
	Requeue(ctx context.Context) error
}

// Broker moves job ids from producers to consumers with at-least-once delivery.
// Job records themselves live in Redis regardless of the broker.
type Broker interface {
	Publish(ctx context.Context, jobID string) error
	Next(ctx context.Context, timeout time.Duration) (Delivery, error)
	Ping(ctx context.Context) error
}
