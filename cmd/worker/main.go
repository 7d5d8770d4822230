package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/agentic-support/internal/bootstrap"
	"github.com/spec-kit/agentic-support/internal/classifier"
	"github.com/spec-kit/agentic-support/internal/config"
	"github.com/spec-kit/agentic-support/internal/events"
	"github.com/spec-kit/agentic-support/internal/observability"
	"github.com/spec-kit/agentic-support/internal/service"
	"github.com/spec-kit/agentic-support/internal/worker"
)

const shutdownGrace = 30 * time.Second

func main() {
	envFiles := pflag.StringSlice("env-file", nil, "env files to load before reading the environment (default .env if present)")
	concurrency := pflag.IntP("concurrency", "c", 0, "worker goroutines (overrides WORKER_CONCURRENCY)")
	pflag.Parse()

	cfg, err := config.Load(*envFiles...)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *concurrency > 0 {
		cfg.Worker.Concurrency = *concurrency
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tickets, closeStore, err := bootstrap.OpenTicketRepository(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("failed to open ticket store", zap.Error(err))
	}
	defer closeStore()

	jobs, closeQueue, err := bootstrap.OpenQueue(ctx, cfg, cfg.Worker.ID, logger)
	if err != nil {
		logger.Fatal("failed to open job queue", zap.Error(err))
	}
	defer closeQueue()

	dispatcher := events.NewInMemoryDispatcher()
	service.NewLifecycleNotifier(dispatcher, logger).RegisterHandlers()

	registry := worker.NewRegistry()
	worker.NewClassifyTask(tickets, classifier.DefaultRules, dispatcher, logger).Register(registry)

	metrics := observability.NewMetrics()
	pool := worker.NewPool(worker.Config{
		Logger:      logger,
		Jobs:        jobs,
		Registry:    registry,
		Metrics:     metrics,
		WorkerID:    cfg.Worker.ID,
		Concurrency: cfg.Worker.Concurrency,
		PollTimeout: cfg.Worker.PollTimeout(),
	})

	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
	cancel()

	select {
	case <-done:
		logger.Info("worker stopped", zap.Any("jobs", metrics.Snapshot().Jobs))
	case <-time.After(shutdownGrace):
		logger.Warn("worker shutdown timeout exceeded, exiting with jobs in flight")
	}
}
