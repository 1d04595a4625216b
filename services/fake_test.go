package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"card-league-system/models"
	"card-league-system/repository"
	"card-league-system/utils"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// tracingStore records store calls in order and can fail chosen methods.
type tracingStore struct {
	*repository.MemoryStore

	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func newTracingStore() *tracingStore {
	return &tracingStore{MemoryStore: repository.NewMemoryStore(), fail: map[string]error{}}
}

func (t *tracingStore) trace(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, name)
	return t.fail[name]
}

func (t *tracingStore) failOn(name string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil {
		delete(t.fail, name)
		return
	}
	t.fail[name] = err
}

func (t *tracingStore) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = nil
}

func (t *tracingStore) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

func (t *tracingStore) count(name string) int {
	n := 0
	for _, c := range t.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

func (t *tracingStore) UpdateMatchSlot(ctx context.Context, id string, slot models.Slot, v models.MatchSlot) error {
	if err := t.trace("UpdateMatchSlot"); err != nil {
		return err
	}
	return t.MemoryStore.UpdateMatchSlot(ctx, id, slot, v)
}

func (t *tracingStore) TransitionMatchToCompleted(ctx context.Context, id, winnerID string, s1, s2 int) error {
	if err := t.trace("TransitionMatchToCompleted"); err != nil {
		return err
	}
	return t.MemoryStore.TransitionMatchToCompleted(ctx, id, winnerID, s1, s2)
}

func (t *tracingStore) UpsertDeckTypeStat(ctx context.Context, userID, deckType, seasonID string, d repository.StatDelta) error {
	if err := t.trace("UpsertDeckTypeStat"); err != nil {
		return err
	}
	return t.MemoryStore.UpsertDeckTypeStat(ctx, userID, deckType, seasonID, d)
}

func (t *tracingStore) ReassignCategoryHolder(ctx context.Context, category, seasonID, userID string) error {
	if err := t.trace("ReassignCategoryHolder"); err != nil {
		return err
	}
	return t.MemoryStore.ReassignCategoryHolder(ctx, category, seasonID, userID)
}

func (t *tracingStore) UpsertPlayerAchievement(ctx context.Context, userID, achievementID, seasonID string, at time.Time) error {
	if err := t.trace("UpsertPlayerAchievement"); err != nil {
		return err
	}
	return t.MemoryStore.UpsertPlayerAchievement(ctx, userID, achievementID, seasonID, at)
}

func (t *tracingStore) SetCurrentAchievementFlags(ctx context.Context, userID, seasonID, currentID string) error {
	if err := t.trace("SetCurrentAchievementFlags:" + userID); err != nil {
		return err
	}
	return t.MemoryStore.SetCurrentAchievementFlags(ctx, userID, seasonID, currentID)
}

// countingRecorder wraps the aggregator and counts calls per user.
type countingRecorder struct {
	next OutcomeRecorder

	mu    sync.Mutex
	calls map[string]int
}

func (c *countingRecorder) RecordOutcome(ctx context.Context, userID, deckType, seasonID string, won bool) error {
	c.mu.Lock()
	c.calls[userID]++
	c.mu.Unlock()
	return c.next.RecordOutcome(ctx, userID, deckType, seasonID, won)
}

func (c *countingRecorder) Calls(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[userID]
}

type recordingNotifier struct {
	mu         sync.Mutex
	mismatches []string
	completed  []string
}

func (n *recordingNotifier) WinnerMismatch(_ context.Context, m *models.Match) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mismatches = append(n.mismatches, m.ID)
	return nil
}

func (n *recordingNotifier) MatchCompleted(_ context.Context, m *models.Match) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, m.ID)
	return nil
}

type harness struct {
	ctx       context.Context
	store     *tracingStore
	resolver  *utils.DeckTypeResolver
	recorder  *countingRecorder
	leaders   *LeadershipAssigner
	evaluator *AchievementEvaluator
	orch      *CompletionOrchestrator
	engine    *ConsensusEngine
	matches   *MatchService
	notifier  *recordingNotifier
	season    *models.Season
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	logger := discardLogger()

	store := newTracingStore()
	catalog, err := models.LoadCatalog("")
	require.NoError(t, err)
	require.NoError(t, SeedCatalog(ctx, store, catalog))

	resolver := utils.NewDeckTypeResolver(catalog.DeckTypes)
	recorder := &countingRecorder{next: NewDeckStatsAggregator(store, logger), calls: map[string]int{}}
	leaders := NewLeadershipAssigner(store, nil, logger)
	evaluator := NewAchievementEvaluator(store, logger)
	orch := NewCompletionOrchestrator(recorder, leaders, evaluator, store, nil, logger)
	notifier := &recordingNotifier{}
	engine := NewConsensusEngine(store, orch, resolver, nil, notifier, nil, logger)
	matches := NewMatchService(store, logger)

	season, err := matches.OpenSeason(ctx, "Spring League", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	return &harness{
		ctx: ctx, store: store, resolver: resolver, recorder: recorder, leaders: leaders,
		evaluator: evaluator, orch: orch, engine: engine, matches: matches, notifier: notifier, season: season,
	}
}

var admin = Actor{UserID: "admin", IsAdmin: true}

func (h *harness) schedule(t *testing.T, p1, p2 string) *models.Match {
	t.Helper()
	m, err := h.matches.ScheduleMatch(h.ctx, admin, ScheduleInput{
		SeasonID: h.season.ID, Player1ID: p1, Player2ID: p2, MatchDate: "2026-03-10", MatchTime: "19:30",
	})
	require.NoError(t, err)
	return m
}

// completedMatch inserts an already completed match without running the pipeline.
func (h *harness) completedMatch(t *testing.T, winner, loser string, date time.Time, hhmm string) {
	t.Helper()
	m := &models.Match{SeasonID: h.season.ID, Player1ID: winner, Player2ID: loser, MatchDate: date, MatchTime: hhmm}
	require.NoError(t, h.store.CreateMatch(h.ctx, m))
	require.NoError(t, h.store.MemoryStore.TransitionMatchToCompleted(h.ctx, m.ID, winner, 1, 0))
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func fullEvidence(winner string, damage int, deck string) EvidenceInput {
	in := EvidenceInput{
		ImageRef:        strPtr("https://cdn.example.com/evidence/" + winner + ".png"),
		DamagePoints:    intPtr(damage),
		WinnerSelection: strPtr(winner),
	}
	if deck != "" {
		in.DeckType = strPtr(deck)
	}
	return in
}
