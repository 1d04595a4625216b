package services

import (
	"context"
	"log/slog"

	"card-league-system/repository"
)

// DeckStatsAggregator keeps per (player, deck type, season) win/loss counters.
type DeckStatsAggregator struct {
	Store  repository.DeckStatStore
	Logger *slog.Logger
}

func NewDeckStatsAggregator(store repository.DeckStatStore, logger *slog.Logger) *DeckStatsAggregator {
	return &DeckStatsAggregator{Store: store, Logger: logger}
}

// RecordOutcome adds one game to the player's counters for deckType, creating
// the row on first contribution. There is no undo.
func (a *DeckStatsAggregator) RecordOutcome(ctx context.Context, userID, deckType, seasonID string, won bool) error {
	if err := a.Store.UpsertDeckTypeStat(ctx, userID, deckType, seasonID, repository.OutcomeDelta(won)); err != nil {
		return persistence("upsert deck type stat", err)
	}
	a.Logger.DebugContext(ctx, "deck type outcome recorded",
		"user_id", userID, "deck_type", deckType, "season_id", seasonID, "won", won)
	return nil
}
