package services

import (
	"context"
	"log/slog"

	"card-league-system/metrics"
	"card-league-system/models"
	"card-league-system/repository"
)

// LeaderAssignment is one gym badge holder chosen by ReassignLeaders.
type LeaderAssignment struct {
	Category string `json:"category"`
	UserID   string `json:"user_id"`
	Wins     int64  `json:"wins"`
}

type leaderStore interface {
	repository.DeckStatStore
	repository.BadgeStore
}

// LeadershipAssigner awards each deck type's gym badge to the season's top winner.
type LeadershipAssigner struct {
	Store   leaderStore
	Metrics *metrics.LeagueMetrics
	Logger  *slog.Logger
}

func NewLeadershipAssigner(store leaderStore, m *metrics.LeagueMetrics, logger *slog.Logger) *LeadershipAssigner {
	return &LeadershipAssigner{Store: store, Metrics: m, Logger: logger}
}

// SelectLeaders picks the max-wins row per deck type. Rows with zero wins
// never lead. On a tie the row seen first keeps the lead, so callers must pass
// rows in creation order. Output follows first appearance of each category.
func SelectLeaders(stats []models.DeckTypeStat) []LeaderAssignment {
	var order []string
	best := make(map[string]LeaderAssignment)
	for _, s := range stats {
		if s.Wins <= 0 {
			continue
		}
		cur, ok := best[s.DeckType]
		if !ok {
			order = append(order, s.DeckType)
		}
		if !ok || s.Wins > cur.Wins {
			best[s.DeckType] = LeaderAssignment{Category: s.DeckType, UserID: s.UserID, Wins: s.Wins}
		}
	}
	out := make([]LeaderAssignment, 0, len(order))
	for _, c := range order {
		out = append(out, best[c])
	}
	return out
}

// ReassignLeaders recomputes every gym badge holder for the season. Each
// category's holder row is deleted and re-inserted even when unchanged.
func (a *LeadershipAssigner) ReassignLeaders(ctx context.Context, seasonID string) ([]LeaderAssignment, error) {
	stats, err := a.Store.ListDeckTypeStats(ctx, seasonID)
	if err != nil {
		return nil, persistence("list deck type stats", err)
	}

	leaders := SelectLeaders(stats)
	for i, l := range leaders {
		if err := a.Store.ReassignCategoryHolder(ctx, l.Category, seasonID, l.UserID); err != nil {
			a.Metrics.HolderReassigned(i)
			return leaders[:i], persistence("reassign category holder", err)
		}
	}
	a.Metrics.HolderReassigned(len(leaders))
	a.Logger.InfoContext(ctx, "gym badge leaders reassigned", "season_id", seasonID, "categories", len(leaders))
	return leaders, nil
}
