package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/agentic-support/internal/api/http"
	"github.com/spec-kit/agentic-support/internal/api/http/handlers"
	"github.com/spec-kit/agentic-support/internal/bootstrap"
	"github.com/spec-kit/agentic-support/internal/config"
	"github.com/spec-kit/agentic-support/internal/events"
	"github.com/spec-kit/agentic-support/internal/observability"
	"github.com/spec-kit/agentic-support/internal/service"
)

func main() {
	envFiles := pflag.StringSlice("env-file", nil, "env files to load before reading the environment (default .env if present)")
	pflag.Parse()

	cfg, err := config.Load(*envFiles...)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
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

	jobs, closeQueue, err := bootstrap.OpenQueue(ctx, cfg, cfg.App.Name, logger)
	if err != nil {
		logger.Fatal("failed to open job queue", zap.Error(err))
	}
	defer closeQueue()

	dispatcher := events.NewInMemoryDispatcher()
	service.NewLifecycleNotifier(dispatcher, logger).RegisterHandlers()

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: tickets,
		Queue:      jobs,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	metrics := observability.NewMetrics()
	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(tickets, jobs, logger),
		Tickets: handlers.NewTicketsHandler(ticketService),
	})

	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.App.Addr()),
			zap.String("env", cfg.App.Env),
			zap.String("version", cfg.App.Version),
			zap.String("storage", cfg.Storage.Driver),
			zap.String("broker", cfg.Queue.Broker))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
