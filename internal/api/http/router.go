package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/ticket-tracker/internal/api/http/handlers"
	"github.com/spec-kit/ticket-tracker/internal/auth"
	"github.com/spec-kit/ticket-tracker/internal/observability"
	"github.com/spec-kit/ticket-tracker/internal/ratelimit"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health           *handlers.HealthHandler
	Users            *handlers.UsersHandler
	Staff            *handlers.StaffHandler
	Tickets          *handlers.TicketsHandler
	Comments         *handlers.CommentsHandler
	AuthMiddleware   *auth.AuthMiddleware
	ClassifierLimits *ratelimit.Limiter
	Metrics          *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)
	authGroup.Post("/logout", cfg.AuthMiddleware.Handle, cfg.Users.Logout)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Users.Me)

	api.Get("/staff", cfg.AuthMiddleware.Handle, cfg.Staff.List)

	limited := cfg.ClassifierLimits.Middleware()

	tickets := api.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	// Fixed paths first so they are not captured by /:id.
	tickets.Get("/stats", cfg.Tickets.Stats)
	tickets.Get("/export_csv", cfg.Tickets.ExportCSV)
	tickets.Post("/classify", limited, cfg.Tickets.Classify)
	tickets.Post("/bulk_update", cfg.Tickets.BulkUpdate)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id", cfg.Tickets.UpdateTicket)
	tickets.Put("/:id", cfg.Tickets.UpdateTicket)
	tickets.Delete("/:id", cfg.Tickets.DeleteTicket)
	tickets.Get("/:id/suggest_reply", limited, cfg.Tickets.SuggestReply)

	tickets.Get("/:id/comments", cfg.Comments.List)
	tickets.Post("/:id/comments", cfg.Comments.Create)
	tickets.Get("/:id/comments/:commentId", cfg.Comments.Get)
	tickets.Delete("/:id/comments/:commentId", cfg.Comments.Delete)
}
