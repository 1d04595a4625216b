// handlers/standings_routes.go
package handlers

import (
	"log/slog"

	"card-league-system/middleware"
	"card-league-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupStandingsRoutes registers the read side: leaderboards, gym badge
// holders, pokeball achievements and the deck type catalog.
func SetupStandingsRoutes(app *fiber.App, standings *services.StandingsService, logger *slog.Logger) {
	app.Get("/deck-types", middleware.UserContextMiddleware(logger), func(c *fiber.Ctx) error {
		types, err := standings.ListDeckTypes(c.UserContext())
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(fiber.Map{"deck_types": types})
	})

	seasons := app.Group("/seasons/:season_id", middleware.UserContextMiddleware(logger))

	seasons.Get("/deck-types/:deck_type/leaderboard", func(c *fiber.Ctx) error {
		entries, err := standings.DeckTypeLeaderboard(c.UserContext(), c.Params("season_id"), c.Params("deck_type"))
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(fiber.Map{"entries": entries})
	})

	seasons.Get("/gym-badges", func(c *fiber.Ctx) error {
		badges, err := standings.GymBadges(c.UserContext(), c.Params("season_id"))
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(fiber.Map{"gym_badges": badges})
	})

	seasons.Get("/players/:user_id/achievements", func(c *fiber.Ctx) error {
		view, err := standings.PlayerAchievements(c.UserContext(), c.Params("user_id"), c.Params("season_id"))
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(view)
	})
}
