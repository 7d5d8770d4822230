package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/agentic-support/internal/domain"
	"github.com/spec-kit/agentic-support/internal/persistence"
	"github.com/spec-kit/agentic-support/internal/testutils"
)

const amqpWait = 5 * time.Second

func newAMQPBroker(t *testing.T, url string, prefetch int) Broker {
	t.Helper()
	name := "agentic-test-" + uuid.NewString()[:8]
	conn, err := persistence.NewAMQP(url, name, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = conn.Channel.QueueDelete(name, false, false, false)
		conn.Close()
	})
	return NewAMQPBroker(conn, "test-"+name, prefetch)
}

func TestAMQPBroker_Integration(t *testing.T) {
	url := testutils.AMQPURL(t)
	ctx := context.Background()

	t.Run("publish next ack", func(t *testing.T) {
		broker := newAMQPBroker(t, url, 1)
		require.NoError(t, broker.Ping(ctx))
		require.NoError(t, broker.Publish(ctx, "job-1"))

		delivery, err := broker.Next(ctx, amqpWait)
		require.NoError(t, err)
		assert.Equal(t, "job-1", delivery.JobID())
		require.NoError(t, delivery.Ack(ctx))

		_, err = broker.Next(ctx, 200*time.Millisecond)
		assert.ErrorIs(t, err, ErrNoDelivery)
	})

	t.Run("requeue redelivers", func(t *testing.T) {
		broker := newAMQPBroker(t, url, 1)
		require.NoError(t, broker.Publish(ctx, "job-1"))

		delivery, err := broker.Next(ctx, amqpWait)
		require.NoError(t, err)
		require.NoError(t, delivery.Requeue(ctx))

		again, err := broker.Next(ctx, amqpWait)
		require.NoError(t, err)
		assert.Equal(t, "job-1", again.JobID())
		require.NoError(t, again.Ack(ctx))
	})

	t.Run("prefetch bounds unacknowledged deliveries", func(t *testing.T) {
		single := newAMQPBroker(t, url, 1)
		require.NoError(t, single.Publish(ctx, "job-1"))
		require.NoError(t, single.Publish(ctx, "job-2"))

		first, err := single.Next(ctx, amqpWait)
		require.NoError(t, err)
		_, err = single.Next(ctx, 500*time.Millisecond)
		assert.ErrorIs(t, err, ErrNoDelivery, "prefetch 1 withholds the second job until the first is acked")
		require.NoError(t, first.Ack(ctx))
		second, err := single.Next(ctx, amqpWait)
		require.NoError(t, err)
		require.NoError(t, second.Ack(ctx))

		pair := newAMQPBroker(t, url, 2)
		require.NoError(t, pair.Publish(ctx, "job-1"))
		require.NoError(t, pair.Publish(ctx, "job-2"))

		a, err := pair.Next(ctx, amqpWait)
		require.NoError(t, err)
		b, err := pair.Next(ctx, amqpWait)
		require.NoError(t, err, "prefetch 2 serves two workers at once")
		assert.ElementsMatch(t, []string{"job-1", "job-2"}, []string{a.JobID(), b.JobID()})
		require.NoError(t, a.Ack(ctx))
		require.NoError(t, b.Ack(ctx))
	})

	t.Run("queue over amqp", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })

		q := New(client, newAMQPBroker(t, url, 1), Config{Name: "agentic", KeyPrefix: "test", ResultTTL: time.Minute})
		jobID, err := q.Enqueue(ctx, domain.TaskClassifyTicket, "ticket-1")
		require.NoError(t, err)

		delivery, err := q.Next(ctx, amqpWait)
		require.NoError(t, err)
		assert.Equal(t, jobID, delivery.JobID())

		job, err := q.Claim(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusStarted, job.Status)
		require.NoError(t, delivery.Ack(ctx))
		require.NoError(t, q.Ping(ctx))
	})
}
