package services

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"card-league-system/models"
	"card-league-system/repository"
)

type standingsStore interface {
	repository.DeckStatStore
	repository.BadgeStore
	repository.AchievementStore
}

// DeckTypeCatalog resolves and renders deck types.
type DeckTypeCatalog interface {
	DeckTypeResolver
	Keys() []string
	DisplayName(key string) string
}

// StandingsService serves read models derived from completed matches.
type StandingsService struct {
	Store     standingsStore
	DeckTypes DeckTypeCatalog
	Logger    *slog.Logger
}

func NewStandingsService(store standingsStore, deckTypes DeckTypeCatalog, logger *slog.Logger) *StandingsService {
	return &StandingsService{Store: store, DeckTypes: deckTypes, Logger: logger}
}

type LeaderboardEntry struct {
	Rank       int     `json:"rank"`
	UserID     string  `json:"user_id"`
	Wins       int64   `json:"wins"`
	Losses     int64   `json:"losses"`
	TotalGames int64   `json:"total_games"`
	WinRate    float64 `json:"win_rate"`
}

type DeckTypeView struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	Badge       string `json:"badge,omitempty"`
}

type GymBadgeView struct {
	Category    string     `json:"category"`
	DisplayName string     `json:"display_name"`
	Badge       string     `json:"badge"`
	IconURL     string     `json:"icon_url,omitempty"`
	HolderID    *string    `json:"holder_id"`
	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
}

type AchievementView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Kind        string    `json:"kind"`
	Priority    int       `json:"priority"`
	IconURL     string    `json:"icon_url,omitempty"`
	EarnedAt    time.Time `json:"earned_at"`
	IsCurrent   bool      `json:"is_current"`
	Description string    `json:"description,omitempty"`
}

type PlayerAchievementsView struct {
	UserID   string            `json:"user_id"`
	SeasonID string            `json:"season_id"`
	Current  *AchievementView  `json:"current"`
	Earned   []AchievementView `json:"earned"`
}

func (s *StandingsService) resolve(deckType string) (string, error) {
	key, ok := s.DeckTypes.Resolve(deckType)
	if !ok {
		return "", &ValidationError{Field: "deck_type", Reason: "unknown deck type " + deckType}
	}
	return key, nil
}

// DeckTypeLeaderboard ranks the season's players for one deck type by wins.
// Equal wins keep row creation order, matching gym badge tie-breaking.
func (s *StandingsService) DeckTypeLeaderboard(ctx context.Context, seasonID, deckType string) ([]LeaderboardEntry, error) {
	key, err := s.resolve(deckType)
	if err != nil {
		return nil, err
	}
	stats, err := s.Store.ListDeckTypeStats(ctx, seasonID)
	if err != nil {
		return nil, persistence("list deck type stats", err)
	}
	out := []LeaderboardEntry{}
	for _, st := range stats {
		if st.DeckType != key {
			continue
		}
		e := LeaderboardEntry{UserID: st.UserID, Wins: st.Wins, Losses: st.Losses, TotalGames: st.TotalGames}
		if st.TotalGames > 0 {
			e.WinRate = float64(st.Wins) / float64(st.TotalGames)
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Wins > out[j].Wins })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

// ListDeckTypes lists canonical deck types with their gym badge names.
func (s *StandingsService) ListDeckTypes(ctx context.Context) ([]DeckTypeView, error) {
	badges, err := s.Store.ListCategoryBadges(ctx)
	if err != nil {
		return nil, persistence("list category badges", err)
	}
	names := make(map[string]string, len(badges))
	for _, b := range badges {
		names[b.Category] = b.Name
	}
	keys := s.DeckTypes.Keys()
	out := make([]DeckTypeView, 0, len(keys))
	for _, k := range keys {
		out = append(out, DeckTypeView{Key: k, DisplayName: s.DeckTypes.DisplayName(k), Badge: names[k]})
	}
	return out, nil
}

// GymBadges lists every gym badge with its current holder for the season.
func (s *StandingsService) GymBadges(ctx context.Context, seasonID string) ([]GymBadgeView, error) {
	badges, err := s.Store.ListCategoryBadges(ctx)
	if err != nil {
		return nil, persistence("list category badges", err)
	}
	holders, err := s.Store.ListCategoryHolders(ctx, seasonID)
	if err != nil {
		return nil, persistence("list category holders", err)
	}
	byCategory := make(map[string]models.CategoryBadgeHolder, len(holders))
	for _, h := range holders {
		byCategory[h.BadgeCategory] = h
	}
	out := make([]GymBadgeView, 0, len(badges))
	for _, b := range badges {
		v := GymBadgeView{
			Category:    b.Category,
			DisplayName: s.DeckTypes.DisplayName(b.Category),
			Badge:       b.Name,
			IconURL:     b.IconURL,
		}
		if h, ok := byCategory[b.Category]; ok {
			uid, at := h.UserID, h.AssignedAt
			v.HolderID, v.AssignedAt = &uid, &at
		}
		out = append(out, v)
	}
	return out, nil
}

// PlayerAchievements lists the player's earned pokeballs, most prestigious first.
func (s *StandingsService) PlayerAchievements(ctx context.Context, userID, seasonID string) (*PlayerAchievementsView, error) {
	defs, err := s.Store.ListAchievementDefinitions(ctx)
	if err != nil {
		return nil, persistence("list achievement definitions", err)
	}
	byID := make(map[string]models.AchievementDefinition, len(defs))
	for _, d := range defs {
		byID[d.ID] = d
	}
	rows, err := s.Store.ListPlayerAchievements(ctx, userID, seasonID)
	if err != nil {
		return nil, persistence("list player achievements", err)
	}

	view := &PlayerAchievementsView{UserID: userID, SeasonID: seasonID, Earned: []AchievementView{}}
	for _, r := range rows {
		d := byID[r.AchievementID]
		av := AchievementView{
			ID:          r.AchievementID,
			Name:        d.Name,
			Kind:        d.Kind,
			Priority:    d.Priority,
			IconURL:     d.IconURL,
			Description: d.Description,
			EarnedAt:    r.EarnedAt,
			IsCurrent:   r.IsCurrent,
		}
		view.Earned = append(view.Earned, av)
		if r.IsCurrent {
			cur := av
			view.Current = &cur
		}
	}
	sort.SliceStable(view.Earned, func(i, j int) bool { return view.Earned[i].Priority > view.Earned[j].Priority })
	return view, nil
}
