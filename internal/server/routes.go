package server

import "github.com/gofiber/fiber/v2"

// RegisterRoutes mounts the API on app.
func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/health", h.Health)

	api := app.Group("/api")
	api.Get("/index", h.IndexStats)
	api.Get("/examples", h.Examples)
	api.Get("/metrics", h.Metrics)
	api.Post("/ask", h.Ask)
	api.Post("/preview", h.Preview)
}
