package repository

import (
	"context"
	"time"

	"card-league-system/models"
)

// StatDelta is added to a DeckTypeStat row. A missing row is seeded with it.
type StatDelta struct {
	Wins       int64
	Losses     int64
	TotalGames int64
}

// OutcomeDelta is the delta for one participant of one completed match.
func OutcomeDelta(won bool) StatDelta {
	if won {
		return StatDelta{Wins: 1, TotalGames: 1}
	}
	return StatDelta{Losses: 1, TotalGames: 1}
}

// CompletedMatchQuery filters completed matches. Results are ordered by
// match date then match time, most recent first. Zero Limit means no limit.
type CompletedMatchQuery struct {
	SeasonID string
	UserID   string
	Limit    int
}

type MatchStore interface {
	GetMatch(ctx context.Context, id string) (*models.Match, error)
	CreateMatch(ctx context.Context, m *models.Match) error
	// UpdateMatchSlot writes one slot only while the match is scheduled.
	UpdateMatchSlot(ctx context.Context, id string, slot models.Slot, value models.MatchSlot) error
	// TransitionMatchToCompleted moves a scheduled match to completed. It
	// succeeds at most once per match.
	TransitionMatchToCompleted(ctx context.Context, id, winnerID string, player1Score, player2Score int) error
	CancelMatch(ctx context.Context, id, reason string) error
	ListCompletedMatches(ctx context.Context, q CompletedMatchQuery) ([]models.Match, error)
}

type SeasonStore interface {
	GetSeason(ctx context.Context, id string) (*models.Season, error)
	CreateSeason(ctx context.Context, s *models.Season) error
	CloseSeason(ctx context.Context, id string, at time.Time) error
	ListOpenSeasons(ctx context.Context) ([]models.Season, error)
}

type DeckStatStore interface {
	UpsertDeckTypeStat(ctx context.Context, userID, deckType, seasonID string, delta StatDelta) error
	// ListDeckTypeStats returns the season's rows in creation order.
	ListDeckTypeStats(ctx context.Context, seasonID string) ([]models.DeckTypeStat, error)
}

type BadgeStore interface {
	SeedCategoryBadges(ctx context.Context, badges []models.CategoryBadge) error
	ListCategoryBadges(ctx context.Context) ([]models.CategoryBadge, error)
	// ReassignCategoryHolder deletes the current holder and inserts userID.
	ReassignCategoryHolder(ctx context.Context, category, seasonID, userID string) error
	ListCategoryHolders(ctx context.Context, seasonID string) ([]models.CategoryBadgeHolder, error)
}

type AchievementStore interface {
	SeedAchievementDefinitions(ctx context.Context, defs []models.AchievementDefinition) error
	// ListAchievementDefinitions returns definitions by descending priority.
	ListAchievementDefinitions(ctx context.Context) ([]models.AchievementDefinition, error)
	// UpsertPlayerAchievement is a no-op when the row already exists.
	UpsertPlayerAchievement(ctx context.Context, userID, achievementID, seasonID string, earnedAt time.Time) error
	ListPlayerAchievements(ctx context.Context, userID, seasonID string) ([]models.PlayerAchievement, error)
	// SetCurrentAchievementFlags marks currentID as the only current row for
	// the player and season. An empty currentID clears every flag.
	SetCurrentAchievementFlags(ctx context.Context, userID, seasonID, currentID string) error
}

type TaskStore interface {
	// SaveRecomputeTask inserts the task, or resets an existing task for the
	// same match, step and user back to pending.
	SaveRecomputeTask(ctx context.Context, t *models.RecomputeTask) error
	ListDueRecomputeTasks(ctx context.Context, now time.Time, limit int) ([]models.RecomputeTask, error)
	UpdateRecomputeTask(ctx context.Context, t *models.RecomputeTask) error
}

// Store is everything the league services need from persistence.
type Store interface {
	MatchStore
	SeasonStore
	DeckStatStore
	BadgeStore
	AchievementStore
	TaskStore

	Migrate(ctx context.Context) error
}
