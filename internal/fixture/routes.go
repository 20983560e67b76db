package fixture

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

// SetupRoutes configures all fixture routes
func SetupRoutes(app *fiber.App, s *Server) {
	requireBearer := RequireBearer(s.tokens, s.metrics)

	// Auth endpoints (no bearer required)
	auth := app.Group("/auth")
	auth.Post("/login", s.Login)
	auth.Post("/revoke", s.Revoke)
	app.Post("/oauth/token", s.Token)

	// Item endpoints
	items := app.Group("/items", requireBearer)
	items.Post("/", s.CreateItem)
	items.Get("/:id", s.GetItem)
	items.Put("/:id", s.PutItem)
	items.Delete("/:id", s.DeleteItem)

	// Uploads and downloads
	app.Post("/uploads", requireBearer, s.Upload)
	app.Get("/files/:name", requireBearer, s.GetFile)

	// Health and metrics endpoints (no auth required)
	app.Get("/health", s.Health)
	if s.cfg.TelemetryEnabled {
		app.Get(s.cfg.MetricsPath, adaptor.HTTPHandler(s.metrics.Handler()))
	}

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "birbcall-fixture",
			"version": Version,
			"status":  "running",
			"endpoints": fiber.Map{
				"auth": fiber.Map{
					"login":  "POST /auth/login",
					"token":  "POST /oauth/token",
					"revoke": "POST /auth/revoke",
				},
				"items": fiber.Map{
					"create": "POST /items",
					"get":    "GET /items/:id",
					"put":    "PUT /items/:id",
					"delete": "DELETE /items/:id",
				},
				"upload":   "POST /uploads",
				"download": "GET /files/:name",
				"health":   "GET /health",
				"metrics":  "GET " + s.cfg.MetricsPath,
			},
		})
	})

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(
			NewErrorResponse("Endpoint not found", ErrCodeNotFound),
		)
	})
}
