// Package bootstrap opens the storage and queue connections shared by the
// API and worker processes.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/agentic-support/internal/config"
	"github.com/spec-kit/agentic-support/internal/persistence"
	"github.com/spec-kit/agentic-support/internal/queue"
	"github.com/spec-kit/agentic-support/internal/repository"
)

// Closer releases a connection opened during bootstrap.
type Closer func()

// OpenTicketRepository connects the configured ticket store.
func OpenTicketRepository(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (repository.TicketRepository, Closer, error) {
	switch cfg.Driver {
	case config.StorageDriverMongo:
		m, err := persistence.NewMongo(ctx, cfg.Mongo, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		repo := repository.NewMongoTicketRepository(m.Collection(cfg.Mongo.TicketCollection))
		return repo, func() { m.Close(context.Background()) }, nil
	case config.StorageDriverPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return repository.NewPostgresTicketRepository(pg.PoolHandle()), pg.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// OpenQueue connects Redis for job records and the configured broker.
// consumerTag names this process when it consumes from RabbitMQ.
func OpenQueue(ctx context.Context, cfg *config.Config, consumerTag string, logger *zap.Logger) (*queue.Queue, Closer, error) {
	rdb, err := persistence.NewRedis(ctx, cfg.Redis, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	var (
		broker queue.Broker
		closer Closer = rdb.Close
	)
	switch cfg.Queue.Broker {
	case config.BrokerRedis:
		broker = queue.NewRedisBroker(rdb.Client, cfg.Queue.KeyPrefix, cfg.Queue.Name)
	case config.BrokerAMQP:
		conn, err := persistence.NewAMQP(cfg.Queue.AMQPURL, cfg.Queue.Name, logger)
		if err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		broker = queue.NewAMQPBroker(conn, consumerTag, cfg.Worker.PrefetchCount())
		closer = func() {
			conn.Close()
			rdb.Close()
		}
	default:
		rdb.Close()
		return nil, nil, fmt.Errorf("unknown queue broker %q", cfg.Queue.Broker)
	}

	q := queue.New(rdb.Client, broker, queue.Config{
		Name:       cfg.Queue.Name,
		KeyPrefix:  cfg.Queue.KeyPrefix,
		ResultTTL:  cfg.Queue.ResultTTL(),
		FailureTTL: cfg.Queue.FailureTTL(),
	})
	return q, closer, nil
}
