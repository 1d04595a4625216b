package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"card-league-system/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) completedFixture() CompletedMatch {
	return CompletedMatch{
		MatchID:         "m-1",
		SeasonID:        h.season.ID,
		Player1ID:       "X",
		Player2ID:       "Y",
		WinnerID:        "X",
		Player1DeckType: "fire",
		Player2DeckType: "water",
	}
}

func stepNames(steps []StepReport) []models.RecomputeStep {
	out := make([]models.RecomputeStep, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.Step)
	}
	return out
}

func TestOnMatchCompleted_RunsStepsInOrder(t *testing.T) {
	h := newHarness(t)
	h.store.reset()

	out := h.orch.OnMatchCompleted(h.ctx, h.completedFixture())
	assert.Empty(t, out.Failed())

	want := []models.RecomputeStep{
		models.StepRecordPlayer1,
		models.StepRecordPlayer2,
		models.StepReassignLeaders,
		models.StepAchievements1,
		models.StepAchievements2,
	}
	assert.Equal(t, want, stepNames(out.Steps))

	// Store writes follow the same order.
	var writes []string
	for _, c := range h.store.Calls() {
		switch c {
		case "UpsertDeckTypeStat", "ReassignCategoryHolder", "SetCurrentAchievementFlags:X", "SetCurrentAchievementFlags:Y":
			if len(writes) == 0 || writes[len(writes)-1] != c {
				writes = append(writes, c)
			}
		}
	}
	wantWrites := []string{"UpsertDeckTypeStat", "ReassignCategoryHolder", "SetCurrentAchievementFlags:X", "SetCurrentAchievementFlags:Y"}
	if diff := cmp.Diff(wantWrites, writes); diff != "" {
		t.Errorf("store write order mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 1, h.recorder.Calls("X"))
	assert.Equal(t, 1, h.recorder.Calls("Y"))
	assert.Equal(t, []LeaderAssignment{
		{Category: "fire", UserID: "X", Wins: 1},
	}, out.Leaders)
	require.Len(t, out.Achievements, 2)
	assert.Equal(t, "poke-ball", out.Achievements[0].CurrentID)
}

func TestOnMatchCompleted_SkipsUntaggedDeckTypes(t *testing.T) {
	h := newHarness(t)
	cm := h.completedFixture()
	cm.Player2DeckType = ""

	out := h.orch.OnMatchCompleted(h.ctx, cm)
	require.Len(t, out.Steps, 5)
	assert.False(t, out.Steps[0].Skipped)
	assert.True(t, out.Steps[1].Skipped)
	assert.Zero(t, h.recorder.Calls("Y"))
	assert.Equal(t, 1, h.recorder.Calls("X"))
}

func TestOnMatchCompleted_FailedStepIsRecordedAndLaterStepsRun(t *testing.T) {
	h := newHarness(t)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	h.orch.Now = func() time.Time { return now }
	h.store.failOn("ReassignCategoryHolder", errors.New("deadlock detected"))

	out := h.orch.OnMatchCompleted(h.ctx, h.completedFixture())

	failed := out.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, models.StepReassignLeaders, failed[0].Step)
	assert.Contains(t, failed[0].Error, "deadlock detected")
	assert.NotEmpty(t, failed[0].TaskID)
	assert.Len(t, out.Achievements, 2, "evaluator still runs for both players")

	due, err := h.store.ListDueRecomputeTasks(h.ctx, now.Add(h.orch.RetryDelay), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, models.StepReassignLeaders, due[0].Step)
	assert.Equal(t, "m-1", due[0].MatchID)

	holders, err := h.store.ListCategoryHolders(h.ctx, h.season.ID)
	require.NoError(t, err)
	assert.Empty(t, holders)

	// The store recovers; the retry converges.
	h.store.failOn("ReassignCategoryHolder", nil)
	h.orch.Now = func() time.Time { return now.Add(time.Hour) }
	n, err := h.orch.RetryDue(h.ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	holders, err = h.store.ListCategoryHolders(h.ctx, h.season.ID)
	require.NoError(t, err)
	require.Len(t, holders, 1)
	assert.Equal(t, "X", holders[0].UserID)

	due, err = h.store.ListDueRecomputeTasks(h.ctx, now.Add(24*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestRetryTask_RecordStepRefreshesDerivedState(t *testing.T) {
	h := newHarness(t)
	h.store.failOn("UpsertDeckTypeStat", errors.New("timeout"))
	out := h.orch.OnMatchCompleted(h.ctx, h.completedFixture())
	require.Len(t, out.Failed(), 2)

	h.store.failOn("UpsertDeckTypeStat", nil)
	h.orch.Now = func() time.Time { return time.Now().Add(time.Hour) }
	n, err := h.orch.RetryDue(h.ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	holders, err := h.store.ListCategoryHolders(h.ctx, h.season.ID)
	require.NoError(t, err)
	require.Len(t, holders, 1)
	assert.Equal(t, "fire", holders[0].BadgeCategory)

	rows, err := h.store.ListPlayerAchievements(h.ctx, "Y", h.season.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsCurrent)
}

func TestRetryTask_BacksOffThenAbandons(t *testing.T) {
	h := newHarness(t)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	h.orch.Now = func() time.Time { return now }
	h.orch.MaxAttempts = 2
	h.store.failOn("ReassignCategoryHolder", errors.New("down"))

	out := h.orch.OnMatchCompleted(h.ctx, h.completedFixture())
	require.Len(t, out.Failed(), 1)

	due, err := h.store.ListDueRecomputeTasks(h.ctx, now.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	err = h.orch.RetryTask(h.ctx, due[0])
	require.Error(t, err)
	due, err = h.store.ListDueRecomputeTasks(h.ctx, now.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Attempts)
	assert.True(t, due[0].NextAttemptAt.After(now.Add(h.orch.RetryDelay)), "backs off")

	require.Error(t, h.orch.RetryTask(h.ctx, due[0]))
	due, err = h.store.ListDueRecomputeTasks(h.ctx, now.Add(24*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due, "abandoned tasks are not due")
}

type failingRecorder struct{}

func (failingRecorder) RecordOutcome(context.Context, string, string, string, bool) error {
	return errors.New("unreachable")
}

func TestOnMatchCompleted_TaskSaveFailureStillReports(t *testing.T) {
	h := newHarness(t)
	orch := NewCompletionOrchestrator(failingRecorder{}, h.leaders, h.evaluator, brokenTasks{h.store}, nil, discardLogger())

	out := orch.OnMatchCompleted(h.ctx, h.completedFixture())
	failed := out.Failed()
	require.Len(t, failed, 2)
	assert.Empty(t, failed[0].TaskID)
}

type brokenTasks struct{ *tracingStore }

func (brokenTasks) SaveRecomputeTask(context.Context, *models.RecomputeTask) error {
	return errors.New("tasks table missing")
}
