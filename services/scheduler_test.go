package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileOpenSeasons(t *testing.T) {
	h := newHarness(t)
	addWins(t, h, "X", "fire", 4)

	closed, err := h.matches.OpenSeason(h.ctx, "Winter", time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, h.store.UpsertDeckTypeStat(h.ctx, "Q", "water", closed.ID, outcome(true)))
	require.NoError(t, h.matches.CloseSeason(h.ctx, closed.ID))

	r := NewReconciler(h.store, h.leaders, discardLogger())
	n, err := r.ReconcileOpenSeasons(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	holders, err := h.store.ListCategoryHolders(h.ctx, h.season.ID)
	require.NoError(t, err)
	assert.Len(t, holders, 1)
	holders, err = h.store.ListCategoryHolders(h.ctx, closed.ID)
	require.NoError(t, err)
	assert.Empty(t, holders, "closed seasons are left alone")

	_, err = r.ReconcileSeason(h.ctx, "missing")
	assert.ErrorIs(t, err, ErrSeasonNotFound)
}

func TestStartReconcileScheduler(t *testing.T) {
	h := newHarness(t)
	addWins(t, h, "X", "metal", 1)

	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()
	sched, err := StartReconcileScheduler(ctx, NewReconciler(h.store, h.leaders, discardLogger()), 50*time.Millisecond)
	require.NoError(t, err)
	defer func() { _ = sched.Shutdown() }()

	require.Eventually(t, func() bool {
		holders, err := h.store.ListCategoryHolders(h.ctx, h.season.ID)
		return err == nil && len(holders) == 1
	}, 2*time.Second, 20*time.Millisecond)
}
