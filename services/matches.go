package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"card-league-system/models"
	"card-league-system/repository"

	"github.com/gosimple/slug"
)

type matchAdminStore interface {
	repository.MatchStore
	repository.SeasonStore
}

// MatchService covers the admin side of the league: seasons and the match schedule.
type MatchService struct {
	Store  matchAdminStore
	Logger *slog.Logger
}

func NewMatchService(store matchAdminStore, logger *slog.Logger) *MatchService {
	return &MatchService{Store: store, Logger: logger}
}

// ScheduleInput is an admin request to schedule a match.
type ScheduleInput struct {
	SeasonID  string `json:"season_id"`
	Player1ID string `json:"player1_id"`
	Player2ID string `json:"player2_id"`
	MatchDate string `json:"match_date"` // YYYY-MM-DD
	MatchTime string `json:"match_time"` // HH:MM, optional
}

func requireAdmin(actor Actor, target, action string) error {
	if !actor.IsAdmin {
		return &AuthorizationError{UserID: actor.UserID, MatchID: target, Action: action}
	}
	return nil
}

func (s *MatchService) openSeason(ctx context.Context, id string) (*models.Season, error) {
	season, err := s.Store.GetSeason(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSeasonNotFound
	}
	if err != nil {
		return nil, persistence("get season", err)
	}
	if season.IsClosed() {
		return nil, &ValidationError{Field: "season_id", Reason: "season is closed"}
	}
	return season, nil
}

func (s *MatchService) ScheduleMatch(ctx context.Context, actor Actor, in ScheduleInput) (*models.Match, error) {
	if err := requireAdmin(actor, "matches", "schedule"); err != nil {
		return nil, err
	}
	p1, p2 := strings.TrimSpace(in.Player1ID), strings.TrimSpace(in.Player2ID)
	if p1 == "" || p2 == "" {
		return nil, &ValidationError{Field: "player_id", Reason: "both players are required"}
	}
	if p1 == p2 {
		return nil, &ValidationError{Field: "player2_id", Reason: "a player cannot play themselves"}
	}
	date, err := time.Parse("2006-01-02", in.MatchDate)
	if err != nil {
		return nil, &ValidationError{Field: "match_date", Reason: "expected YYYY-MM-DD"}
	}
	hhmm := in.MatchTime
	if hhmm == "" {
		hhmm = "00:00"
	}
	if _, err := time.Parse("15:04", hhmm); err != nil {
		return nil, &ValidationError{Field: "match_time", Reason: "expected HH:MM"}
	}
	if _, err := s.openSeason(ctx, in.SeasonID); err != nil {
		return nil, err
	}

	m := &models.Match{
		SeasonID:    in.SeasonID,
		Player1ID:   p1,
		Player2ID:   p2,
		MatchDate:   date,
		MatchTime:   hhmm,
		Status:      models.MatchStatusScheduled,
		ScheduledBy: actor.UserID,
	}
	if err := s.Store.CreateMatch(ctx, m); err != nil {
		return nil, persistence("create match", err)
	}
	s.Logger.InfoContext(ctx, "match scheduled",
		"match_id", m.ID, "season_id", m.SeasonID, "player1_id", p1, "player2_id", p2, "scheduled_by", actor.UserID)
	return m, nil
}

// CancelMatch moves a scheduled match to cancelled. Completed matches cannot be cancelled.
func (s *MatchService) CancelMatch(ctx context.Context, actor Actor, matchID, reason string) (*models.Match, error) {
	if err := requireAdmin(actor, matchID, "cancel"); err != nil {
		return nil, err
	}
	if err := s.Store.CancelMatch(ctx, matchID, strings.TrimSpace(reason)); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrMatchNotFound
		case errors.Is(err, repository.ErrConflict):
			return nil, ErrMatchClosed
		}
		return nil, persistence("cancel match", err)
	}
	m, err := s.Store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, persistence("get match", err)
	}
	s.Logger.InfoContext(ctx, "match cancelled", "match_id", matchID, "by", actor.UserID)
	return m, nil
}

// OpenSeason creates a season starting at startsAt.
func (s *MatchService) OpenSeason(ctx context.Context, name string, startsAt time.Time) (*models.Season, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	season := &models.Season{Name: name, Slug: slug.Make(name), StartsAt: startsAt}
	if err := s.Store.CreateSeason(ctx, season); err != nil {
		return nil, persistence("create season", err)
	}
	s.Logger.InfoContext(ctx, "season opened", "season_id", season.ID, "slug", season.Slug)
	return season, nil
}

// CloseSeason freezes a season. Its matches can no longer change.
func (s *MatchService) CloseSeason(ctx context.Context, seasonID string) error {
	err := s.Store.CloseSeason(ctx, seasonID, time.Now().UTC())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrSeasonNotFound
	case errors.Is(err, repository.ErrConflict):
		return &ValidationError{Field: "season_id", Reason: "season is already closed"}
	case err != nil:
		return persistence("close season", err)
	}
	s.Logger.InfoContext(ctx, "season closed", "season_id", seasonID)
	return nil
}
