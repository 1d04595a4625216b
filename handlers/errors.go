// handlers/errors.go
package handlers

import (
	"errors"
	"log/slog"

	"card-league-system/middleware"
	"card-league-system/services"

	"github.com/gofiber/fiber/v2"
)

// respondError maps service errors onto HTTP statuses.
func respondError(c *fiber.Ctx, logger *slog.Logger, err error) error {
	var (
		validation    *services.ValidationError
		authorization *services.AuthorizationError
		consensus     *services.ConsensusError
		persistence   *services.PersistenceError
	)

	switch {
	case errors.As(err, &validation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": validation.Error(),
			"field": validation.Field,
		})
	case errors.As(err, &authorization):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": authorization.Error()})
	case errors.Is(err, services.ErrMatchNotFound), errors.Is(err, services.ErrSeasonNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrMatchClosed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &consensus):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":        consensus.Error(),
			"kind":         consensus.Kind,
			"player1_pick": consensus.Player1Pick,
			"player2_pick": consensus.Player2Pick,
			"missing":      consensus.Missing,
		})
	case errors.As(err, &persistence):
		logger.Error("store failure", "path", c.Path(), "op", persistence.Op, "error", persistence.Err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}

	logger.Error("unhandled error", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

func actorFrom(c *fiber.Ctx) services.Actor {
	return services.Actor{UserID: middleware.UserID(c), IsAdmin: middleware.IsAdmin(c)}
}
