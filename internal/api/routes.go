package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/yahya159/mobileApp/internal/auth"
)

// RegisterRoutes mounts the API. Health, status and the model list stay
// open; chat and indexing sit behind bearer auth when a verifier is
// configured.
func RegisterRoutes(app *fiber.App, h *Handler, verifier auth.Verifier, corsOrigins string, log *slog.Logger) {
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: corsOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	if verifier == nil {
		log.Warn("no firebase project configured, authentication is disabled")
	}

	app.Get("/api/health", h.Health)
	app.Get("/api/status", h.Status)
	app.Get("/api/models", h.ListModels)

	authed := app.Group("/api", RequireAuth(verifier, log))
	authed.Post("/chat", h.Chat)
	authed.Post("/chat/simple", h.ChatSimple)
	authed.Post("/index", h.Ingest)
}
