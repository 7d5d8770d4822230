package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	healthMessage = "Agentic Support Backend up and running"
	probeTimeout  = 2 * time.Second
)

// Pinger is anything whose connectivity can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler responds to liveness and dependency probes.
type HealthHandler struct {
	store  Pinger
	queue  Pinger
	logger *zap.Logger
}

// NewHealthHandler returns a new handler instance.
func NewHealthHandler(store, queue Pinger, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{store: store, queue: queue, logger: logger}
}

// Live GET /health.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": healthMessage})
}

// Store GET /health/db. The key stays mongo_ok whichever driver is configured.
func (h *HealthHandler) Store(c *fiber.Ctx) error {
	return h.probe(c, "mongo_ok", h.store)
}

// Queue GET /health/queue.
func (h *HealthHandler) Queue(c *fiber.Ctx) error {
	return h.probe(c, "redis_ok", h.queue)
}

// probe never fails the request: errors and panics both report false.
func (h *HealthHandler) probe(c *fiber.Ctx, key string, target Pinger) error {
	ok := h.ping(c.UserContext(), key, target)
	status := fiber.StatusOK
	if !ok {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{key: ok})
}

func (h *HealthHandler) ping(parent context.Context, key string, target Pinger) (ok bool) {
	if target == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("health probe panicked", zap.String("probe", key), zap.Any("panic", r))
			ok = false
		}
	}()

	ctx, cancel := context.WithTimeout(parent, probeTimeout)
	defer cancel()
	if err := target.Ping(ctx); err != nil {
		h.logger.Warn("health probe failed", zap.String("probe", key), zap.Error(err))
		return false
	}
	return true
}
