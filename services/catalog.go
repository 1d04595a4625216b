package services

import (
	"context"

	"card-league-system/models"
)

type catalogStore interface {
	SeedCategoryBadges(ctx context.Context, badges []models.CategoryBadge) error
	SeedAchievementDefinitions(ctx context.Context, defs []models.AchievementDefinition) error
}

// SeedCatalog writes the gym badges and the pokeball ladder. It is safe to run
// on every start.
func SeedCatalog(ctx context.Context, store catalogStore, c *models.Catalog) error {
	if err := store.SeedCategoryBadges(ctx, c.CategoryBadges()); err != nil {
		return persistence("seed category badges", err)
	}
	if err := store.SeedAchievementDefinitions(ctx, c.Achievements); err != nil {
		return persistence("seed achievement definitions", err)
	}
	return nil
}
