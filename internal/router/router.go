package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-audit-api/internal/config"
	"github.com/noah-isme/gema-audit-api/internal/handler"
	"github.com/noah-isme/gema-audit-api/internal/middleware"
	"github.com/noah-isme/gema-audit-api/internal/models"
	"github.com/noah-isme/gema-audit-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AuditHandler  *handler.AuditHandler
	JWTMiddleware fiber.Handler
	WriteLimiter  fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	writeLimiter := deps.WriteLimiter
	if writeLimiter == nil {
		writeLimiter = middleware.RateLimit("audit-write", 30, time.Minute)
	}

	// Audit trail (admin and principal only)
	if deps.AuditHandler != nil {
		audit := app.Group(middleware.AdminPathPrefix+"/audit-logs", jwtMiddleware, middleware.RequireRole(models.RoleAdmin, models.RolePrincipal))
		deps.AuditHandler.Register(audit, writeLimiter)
	}
}
