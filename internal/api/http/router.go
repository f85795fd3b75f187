package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-lifecycle/internal/api/http/handlers"
	"github.com/spec-kit/ticket-lifecycle/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Topics         *handlers.TopicsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)

	tenants := api.Group("/tenants/:tenant")
	tenants.Post("/tickets", cfg.Tickets.CreateTicket)
	tenants.Get("/tickets", cfg.Tickets.ListOpenTickets)
	tenants.Post("/tickets/:id/claim", cfg.Tickets.ClaimTicket)
	tenants.Post("/tickets/:id/close", cfg.Tickets.CloseTicket)
	tenants.Post("/tickets/:id/status", cfg.Tickets.SetStatus)
	tenants.Post("/tickets/:id/archive", cfg.Tickets.ArchiveTicket)
	tenants.Get("/stats", cfg.Tickets.Stats)
	tenants.Get("/metrics", cfg.Tickets.Snapshots)

	tenants.Get("/topics", cfg.Topics.TopKeys)
	tenants.Get("/faq", cfg.Topics.ListFaq)
	tenants.Post("/faq", cfg.Topics.AcceptFaq)
}
