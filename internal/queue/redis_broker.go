package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisBroker keeps pending job ids in a Redis list. Consumers move an id
// into a processing list atomically, so a crashed consumer leaves it there
// instead of losing it.
type redisBroker struct {
	client     *redis.Client
	pending    string
	processing string
}

// NewRedisBroker returns a broker using the lists "<prefix>:queue:<name>" and
// "<prefix>:queue:<name>:processing".
func NewRedisBroker(client *redis.Client, prefix, name string) Broker {
	pending := fmt.Sprintf("%s:queue:%s", prefix, name)
	return &redisBroker{
		client:     client,
		pending:    pending,
		processing: pending + ":processing",
	}
}

func (b *redisBroker) Publish(ctx context.Context, jobID string) error {
	return b.client.LPush(ctx, b.pending, jobID).Err()
}

func (b *redisBroker) Next(ctx context.Context, timeout time.Duration) (Delivery, error) {
	jobID, err := b.client.BRPopLPush(ctx, b.pending, b.processing, timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoDelivery
		}
		return nil, err
	}
	return &redisDelivery{broker: b, jobID: jobID}, nil
}

func (b *redisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

type redisDelivery struct {
	broker *redisBroker
	jobID  string
}

func (d *redisDelivery) JobID() string {
	return d.jobID
}

func (d *redisDelivery) Ack(ctx context.Context) error {
	return d.broker.client.LRem(ctx, d.broker.processing, 1, d.jobID).Err()
}

// Requeue puts the id back at the consuming end so it is picked up next.
func (d *redisDelivery) Requeue(ctx context.Context) error {
	_, err := d.broker.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, d.broker.processing, 1, d.jobID)
		pipe.RPush(ctx, d.broker.pending, d.jobID)
		return nil
	})
	return err
}
