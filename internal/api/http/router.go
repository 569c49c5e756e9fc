package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/helpdesk-labs/helpdesk-service/internal/api/http/handlers"
	"github.com/helpdesk-labs/helpdesk-service/internal/auth"
	"github.com/helpdesk-labs/helpdesk-service/internal/config"
	"github.com/helpdesk-labs/helpdesk-service/internal/observability"
	apperrors "github.com/helpdesk-labs/helpdesk-service/pkg/util"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Meta           *handlers.MetaHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
	RateLimit      config.RateLimitConfig
	// Gatherer backs GET /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// ServerConfig describes the fiber application.
type ServerConfig struct {
	Name           string
	RequestTimeout time.Duration
	CORSOrigins    []string
	Logger         *zap.Logger
	Metrics        *observability.Metrics
	Routes         RouteConfig
}

// NewServer builds the fiber app with middleware and routes attached.
func NewServer(cfg ServerConfig) *fiber.App {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	app := fiber.New(fiber.Config{
		AppName:               cfg.Name,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger, cfg.Metrics),
	})
	RegisterMiddlewares(app, logger, cfg.Metrics, cfg.RequestTimeout, cfg.CORSOrigins)
	RegisterRoutes(app, cfg.Routes)
	return app
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api", limiter.New(rateLimitConfig(cfg.RateLimit)))
	api.Get("/health", cfg.Health.Health)
	api.Get("/_meta", cfg.Meta.Meta)

	tickets := api.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id", cfg.Tickets.UpdateTicket)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)

	app.Use(func(c *fiber.Ctx) error {
		return apperrors.NewRouteNotFound(c.Path())
	})
}

func rateLimitConfig(cfg config.RateLimitConfig) limiter.Config {
	maxRequests := cfg.Max
	if maxRequests <= 0 {
		maxRequests = 60
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	return limiter.Config{
		Max:        maxRequests,
		Expiration: window,
		LimitReached: func(c *fiber.Ctx) error {
			return apperrors.NewRateLimited()
		},
	}
}
