package services

import (
	"testing"
	"time"

	"card-league-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleMatch(t *testing.T) {
	h := newHarness(t)

	m, err := h.matches.ScheduleMatch(h.ctx, admin, ScheduleInput{
		SeasonID: h.season.ID, Player1ID: "X", Player2ID: "Y", MatchDate: "2026-03-15",
	})
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusScheduled, m.Status)
	assert.Equal(t, "00:00", m.MatchTime)
	assert.Equal(t, "admin", m.ScheduledBy)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), m.MatchDate)
}

func TestScheduleMatch_Rejects(t *testing.T) {
	h := newHarness(t)
	valid := ScheduleInput{SeasonID: h.season.ID, Player1ID: "X", Player2ID: "Y", MatchDate: "2026-03-15", MatchTime: "18:45"}

	_, err := h.matches.ScheduleMatch(h.ctx, Actor{UserID: "X"}, valid)
	var ae *AuthorizationError
	assert.ErrorAs(t, err, &ae)

	for name, mutate := range map[string]func(*ScheduleInput){
		"same player": func(in *ScheduleInput) { in.Player2ID = "X" },
		"no player":   func(in *ScheduleInput) { in.Player1ID = " " },
		"bad date":    func(in *ScheduleInput) { in.MatchDate = "15/03/2026" },
		"bad time":    func(in *ScheduleInput) { in.MatchTime = "7pm" },
	} {
		t.Run(name, func(t *testing.T) {
			in := valid
			mutate(&in)
			_, err := h.matches.ScheduleMatch(h.ctx, admin, in)
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}

	in := valid
	in.SeasonID = "nope"
	_, err = h.matches.ScheduleMatch(h.ctx, admin, in)
	assert.ErrorIs(t, err, ErrSeasonNotFound)

	require.NoError(t, h.matches.CloseSeason(h.ctx, h.season.ID))
	_, err = h.matches.ScheduleMatch(h.ctx, admin, valid)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestCancelMatch(t *testing.T) {
	h := newHarness(t)
	m := h.schedule(t, "X", "Y")

	_, err := h.matches.CancelMatch(h.ctx, Actor{UserID: "X"}, m.ID, "")
	var ae *AuthorizationError
	require.ErrorAs(t, err, &ae)

	got, err := h.matches.CancelMatch(h.ctx, admin, m.ID, " rained out ")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCancelled, got.Status)
	assert.Equal(t, "rained out", got.CancelReason)

	_, err = h.matches.CancelMatch(h.ctx, admin, m.ID, "again")
	assert.ErrorIs(t, err, ErrMatchClosed)
	_, err = h.matches.CancelMatch(h.ctx, admin, "missing", "")
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestSeasons(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, "spring-league", h.season.Slug)

	_, err := h.matches.OpenSeason(h.ctx, "  ", time.Now())
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	require.NoError(t, h.matches.CloseSeason(h.ctx, h.season.ID))
	assert.ErrorAs(t, h.matches.CloseSeason(h.ctx, h.season.ID), &ve)
	assert.ErrorIs(t, h.matches.CloseSeason(h.ctx, "nope"), ErrSeasonNotFound)
}
