package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStandings(h *harness) *StandingsService {
	return NewStandingsService(h.store, h.resolver, discardLogger())
}

func TestDeckTypeLeaderboard(t *testing.T) {
	h := newHarness(t)
	addWins(t, h, "Y", "fire", 3)
	addWins(t, h, "X", "fire", 5)
	addWins(t, h, "Z", "fire", 3)
	require.NoError(t, h.store.UpsertDeckTypeStat(h.ctx, "Z", "fire", h.season.ID, outcome(false)))
	addWins(t, h, "W", "water", 9)

	board, err := newStandings(h).DeckTypeLeaderboard(h.ctx, h.season.ID, "Flame")
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, "X", board[0].UserID)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, "Y", board[1].UserID, "ties keep creation order")
	assert.Equal(t, "Z", board[2].UserID)
	assert.EqualValues(t, 4, board[2].TotalGames)
	assert.InDelta(t, 0.75, board[2].WinRate, 1e-9)

	_, err = newStandings(h).DeckTypeLeaderboard(h.ctx, h.season.ID, "pasta")
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestGymBadges(t *testing.T) {
	h := newHarness(t)
	addWins(t, h, "X", "fire", 2)
	_, err := h.leaders.ReassignLeaders(h.ctx, h.season.ID)
	require.NoError(t, err)

	badges, err := newStandings(h).GymBadges(h.ctx, h.season.ID)
	require.NoError(t, err)
	assert.Len(t, badges, 10)
	for _, b := range badges {
		if b.Category == "fire" {
			require.NotNil(t, b.HolderID)
			assert.Equal(t, "X", *b.HolderID)
			assert.Equal(t, "Volcano Badge", b.Badge)
			assert.Equal(t, "Fire", b.DisplayName)
		} else {
			assert.Nil(t, b.HolderID, b.Category)
		}
	}
}

func TestPlayerAchievementsView(t *testing.T) {
	h := newHarness(t)
	addWins(t, h, "P", "fire", 10)
	_, err := h.evaluator.RecomputeAchievements(h.ctx, "P", h.season.ID)
	require.NoError(t, err)

	view, err := newStandings(h).PlayerAchievements(h.ctx, "P", h.season.ID)
	require.NoError(t, err)
	require.Len(t, view.Earned, 2)
	assert.Equal(t, "great-ball", view.Earned[0].ID)
	require.NotNil(t, view.Current)
	assert.Equal(t, "Great Ball", view.Current.Name)

	empty, err := newStandings(h).PlayerAchievements(h.ctx, "nobody", h.season.ID)
	require.NoError(t, err)
	assert.Nil(t, empty.Current)
	assert.Empty(t, empty.Earned)
}

func TestListDeckTypes(t *testing.T) {
	h := newHarness(t)
	types, err := newStandings(h).ListDeckTypes(h.ctx)
	require.NoError(t, err)
	require.Len(t, types, 10)
	assert.Equal(t, "grass", types[0].Key)
	assert.Equal(t, "Rainbow Badge", types[0].Badge)
}
