package services

import (
	"context"
	"log/slog"
	"time"

	"card-league-system/models"
	"card-league-system/repository"
)

// StreakWindow is how many recent completed matches the win streak looks at.
const StreakWindow = 10

type achievementStore interface {
	repository.DeckStatStore
	repository.AchievementStore
	ListCompletedMatches(ctx context.Context, q repository.CompletedMatchQuery) ([]models.Match, error)
}

// PlayerMetrics are the numbers achievement requirements are checked against.
type PlayerMetrics struct {
	TotalWins   int64 `json:"total_wins"`
	TotalGames  int64 `json:"total_games"`
	MaxTypeWins int64 `json:"max_type_wins"`
	WinStreak   int   `json:"win_streak"`
	LeagueWins  int64 `json:"league_wins"`
	TopPlayer   bool  `json:"top_player"`
}

// AchievementReport is the result of one recomputation for one player.
type AchievementReport struct {
	UserID      string        `json:"user_id"`
	SeasonID    string        `json:"season_id"`
	Metrics     PlayerMetrics `json:"metrics"`
	Satisfied   []string      `json:"satisfied"`
	NewlyEarned []string      `json:"newly_earned"`
	CurrentID   string        `json:"current_id,omitempty"`
}

// AchievementEvaluator grants pokeball ladder rungs and picks the current one.
type AchievementEvaluator struct {
	Store  achievementStore
	Logger *slog.Logger
	Now    func() time.Time
}

func NewAchievementEvaluator(store achievementStore, logger *slog.Logger) *AchievementEvaluator {
	return &AchievementEvaluator{Store: store, Logger: logger, Now: func() time.Time { return time.Now().UTC() }}
}

// WinStreak counts consecutive wins from the most recent match, stopping at
// the first match the player did not win. matches must be most recent first.
func WinStreak(userID string, matches []models.Match) int {
	streak := 0
	for i, m := range matches {
		if i >= StreakWindow {
			break
		}
		if m.WinnerID == nil || *m.WinnerID != userID {
			break
		}
		streak++
	}
	return streak
}

// LeagueLeader returns the player with strictly the most wins across the
// matches. ok is false when nobody won or the maximum is shared.
func LeagueLeader(matches []models.Match) (userID string, wins int64, ok bool) {
	counts := make(map[string]int64)
	for _, m := range matches {
		if m.WinnerID != nil && *m.WinnerID != "" {
			counts[*m.WinnerID]++
		}
	}
	var best int64
	unique := false
	for u, n := range counts {
		switch {
		case n > best:
			best, userID, unique = n, u, true
		case n == best:
			unique = false
		}
	}
	if !unique {
		return "", 0, false
	}
	return userID, best, true
}

func satisfies(def models.AchievementDefinition, m PlayerMetrics) bool {
	switch def.RequirementType {
	case models.RequirementTotalWins:
		return m.TotalWins >= def.RequirementValue
	case models.RequirementTotalGames:
		return m.TotalGames >= def.RequirementValue
	case models.RequirementWinStreak:
		return int64(m.WinStreak) >= def.RequirementValue
	case models.RequirementTypeWins:
		return m.MaxTypeWins >= def.RequirementValue
	case models.RequirementTopPlayer:
		threshold := def.RequirementValue
		if threshold <= 0 {
			threshold = models.TopPlayerMinWins
		}
		return m.TopPlayer && m.LeagueWins >= threshold
	}
	return false
}

func (e *AchievementEvaluator) playerMetrics(ctx context.Context, userID, seasonID string) (PlayerMetrics, error) {
	var pm PlayerMetrics

	stats, err := e.Store.ListDeckTypeStats(ctx, seasonID)
	if err != nil {
		return pm, persistence("list deck type stats", err)
	}
	for _, s := range stats {
		if s.UserID != userID {
			continue
		}
		pm.TotalWins += s.Wins
		pm.TotalGames += s.TotalGames
		if s.Wins > pm.MaxTypeWins {
			pm.MaxTypeWins = s.Wins
		}
	}

	league, err := e.Store.ListCompletedMatches(ctx, repository.CompletedMatchQuery{SeasonID: seasonID})
	if err != nil {
		return pm, persistence("list league matches", err)
	}
	if leader, wins, ok := LeagueLeader(league); ok && leader == userID {
		pm.TopPlayer = true
		pm.LeagueWins = wins
	}

	recent, err := e.Store.ListCompletedMatches(ctx, repository.CompletedMatchQuery{
		SeasonID: seasonID, UserID: userID, Limit: StreakWindow,
	})
	if err != nil {
		return pm, persistence("list recent matches", err)
	}
	pm.WinStreak = WinStreak(userID, recent)
	return pm, nil
}

// RecomputeAchievements re-derives the player's metrics, records every newly
// satisfied definition and moves the current flag to the most prestigious
// earned rung. A topPlayer rung is only current while the player still leads.
// Other players' flags are left alone; a former leader keeps a current
// topPlayer rung until their own next recomputation.
func (e *AchievementEvaluator) RecomputeAchievements(ctx context.Context, userID, seasonID string) (AchievementReport, error) {
	report := AchievementReport{UserID: userID, SeasonID: seasonID}

	pm, err := e.playerMetrics(ctx, userID, seasonID)
	if err != nil {
		return report, err
	}
	report.Metrics = pm

	defs, err := e.Store.ListAchievementDefinitions(ctx)
	if err != nil {
		return report, persistence("list achievement definitions", err)
	}
	byID := make(map[string]models.AchievementDefinition, len(defs))
	for _, d := range defs {
		byID[d.ID] = d
	}

	before, err := e.Store.ListPlayerAchievements(ctx, userID, seasonID)
	if err != nil {
		return report, persistence("list player achievements", err)
	}
	earned := make(map[string]bool, len(before))
	for _, a := range before {
		earned[a.AchievementID] = true
	}

	now := e.Now()
	for _, d := range defs {
		if !satisfies(d, pm) {
			continue
		}
		report.Satisfied = append(report.Satisfied, d.ID)
		if err := e.Store.UpsertPlayerAchievement(ctx, userID, d.ID, seasonID, now); err != nil {
			return report, persistence("upsert player achievement", err)
		}
		if !earned[d.ID] {
			earned[d.ID] = true
			report.NewlyEarned = append(report.NewlyEarned, d.ID)
		}
	}

	var current *models.AchievementDefinition
	for id := range earned {
		d, ok := byID[id]
		if !ok {
			continue
		}
		if d.RequirementType == models.RequirementTopPlayer && !pm.TopPlayer {
			continue
		}
		if current == nil || d.Priority > current.Priority || (d.Priority == current.Priority && d.ID < current.ID) {
			pick := d
			current = &pick
		}
	}
	if current != nil {
		report.CurrentID = current.ID
	}
	if err := e.Store.SetCurrentAchievementFlags(ctx, userID, seasonID, report.CurrentID); err != nil {
		return report, persistence("set current achievement", err)
	}

	if len(report.NewlyEarned) > 0 {
		e.Logger.InfoContext(ctx, "achievements earned",
			"user_id", userID, "season_id", seasonID, "earned", report.NewlyEarned, "current", report.CurrentID)
	}
	return report, nil
}
