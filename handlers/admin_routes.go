// handlers/admin_routes.go
package handlers

import (
	"log/slog"

	"card-league-system/middleware"
	"card-league-system/services"

	"github.com/gofiber/fiber/v2"
)

type cancelRequest struct {
	Reason string `json:"reason"`
}

// SetupAdminRoutes registers the admin-only schedule and reconcile endpoints.
func SetupAdminRoutes(app *fiber.App, matches *services.MatchService, reconciler *services.Reconciler, logger *slog.Logger) {
	admin := app.Group("/admin", middleware.UserContextMiddleware(logger), middleware.RequireAdmin())

	admin.Post("/matches", func(c *fiber.Ctx) error {
		var in services.ScheduleInput
		if err := c.BodyParser(&in); err != nil {
			return respondError(c, logger, &services.ValidationError{Field: "body", Reason: "invalid JSON"})
		}
		m, err := matches.ScheduleMatch(c.UserContext(), actorFrom(c), in)
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.Status(fiber.StatusCreated).JSON(m)
	})

	admin.Post("/matches/:id/cancel", func(c *fiber.Ctx) error {
		var req cancelRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return respondError(c, logger, &services.ValidationError{Field: "body", Reason: "invalid JSON"})
			}
		}
		m, err := matches.CancelMatch(c.UserContext(), actorFrom(c), c.Params("id"), req.Reason)
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(m)
	})

	admin.Post("/seasons/:season_id/reconcile", func(c *fiber.Ctx) error {
		leaders, err := reconciler.ReconcileSeason(c.UserContext(), c.Params("season_id"))
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(fiber.Map{"season_id": c.Params("season_id"), "leaders": leaders})
	})
}
