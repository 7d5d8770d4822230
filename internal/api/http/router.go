package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/agentic-support/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Tickets *handlers.TicketsHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health", cfg.Health.Live)
	app.Get("/health/db", cfg.Health.Store)
	app.Get("/health/queue", cfg.Health.Queue)

	app.Post("/tickets", cfg.Tickets.CreateTicket)
	app.Get("/tickets/:id", cfg.Tickets.GetTicket)
	app.Post("/tickets/:id/classify", cfg.Tickets.ClassifyTicket)

	app.Get("/jobs/:job_id", cfg.Tickets.GetJob)
}
