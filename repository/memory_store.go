package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"card-league-system/models"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded in-memory Store. Reads return copies.
type MemoryStore struct {
	mu sync.Mutex

	// Now stamps rows; tests may replace it.
	Now func() time.Time

	seasons      map[string]models.Season
	matches      map[string]*models.Match
	stats        map[statKey]*models.DeckTypeStat
	statOrder    []statKey
	badges       map[string]models.CategoryBadge
	holders      map[holderKey]models.CategoryBadgeHolder
	defs         map[string]models.AchievementDefinition
	achievements map[achievementKey]*models.PlayerAchievement
	tasks        map[taskKey]*models.RecomputeTask
	seq          int64
}

type statKey struct{ user, deckType, season string }
type holderKey struct{ category, season string }
type achievementKey struct{ user, achievement, season string }
type taskKey struct {
	match string
	step  models.RecomputeStep
	user  string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Now:          func() time.Time { return time.Now().UTC() },
		seasons:      make(map[string]models.Season),
		matches:      make(map[string]*models.Match),
		stats:        make(map[statKey]*models.DeckTypeStat),
		badges:       make(map[string]models.CategoryBadge),
		holders:      make(map[holderKey]models.CategoryBadgeHolder),
		defs:         make(map[string]models.AchievementDefinition),
		achievements: make(map[achievementKey]*models.PlayerAchievement),
		tasks:        make(map[taskKey]*models.RecomputeTask),
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

// stamp returns a strictly increasing timestamp so creation order survives
// sorting even when the clock is frozen.
func (s *MemoryStore) stamp() time.Time {
	s.seq++
	return s.Now().Add(time.Duration(s.seq) * time.Nanosecond)
}

// --- matches ---

func (s *MemoryStore) GetMatch(_ context.Context, id string) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.Clone(), nil
}

func (s *MemoryStore) CreateMatch(_ context.Context, m *models.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if _, ok := s.matches[m.ID]; ok {
		return ErrConflict
	}
	if m.Status == "" {
		m.Status = models.MatchStatusScheduled
	}
	if m.MatchTime == "" {
		m.MatchTime = "00:00"
	}
	now := s.stamp()
	m.CreatedAt, m.UpdatedAt = now, now
	s.matches[m.ID] = m.Clone()
	return nil
}

// scheduled returns the match if it exists and is still scheduled.
func (s *MemoryStore) scheduled(id string) (*models.Match, error) {
	m, ok := s.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	if m.Status != models.MatchStatusScheduled {
		return nil, ErrConflict
	}
	return m, nil
}

func (s *MemoryStore) UpdateMatchSlot(_ context.Context, id string, slot models.Slot, value models.MatchSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.scheduled(id)
	if err != nil {
		return err
	}
	m.SetSlot(slot, value.Clone())
	m.UpdatedAt = s.stamp()
	return nil
}

func (s *MemoryStore) TransitionMatchToCompleted(_ context.Context, id, winnerID string, player1Score, player2Score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.scheduled(id)
	if err != nil {
		return err
	}
	now := s.stamp()
	w := winnerID
	m.Status = models.MatchStatusCompleted
	m.WinnerID = &w
	m.Player1Score = player1Score
	m.Player2Score = player2Score
	m.CompletedAt = &now
	m.UpdatedAt = now
	return nil
}

func (s *MemoryStore) CancelMatch(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.scheduled(id)
	if err != nil {
		return err
	}
	now := s.stamp()
	m.Status = models.MatchStatusCancelled
	m.CancelledAt = &now
	m.CancelReason = reason
	m.UpdatedAt = now
	return nil
}

func (s *MemoryStore) ListCompletedMatches(_ context.Context, q CompletedMatchQuery) ([]models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Match
	for _, m := range s.matches {
		if m.SeasonID != q.SeasonID || m.Status != models.MatchStatusCompleted {
			continue
		}
		if q.UserID != "" && !m.IsParticipant(q.UserID) {
			continue
		}
		out = append(out, *m.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.MatchDate.Equal(b.MatchDate) {
			return a.MatchDate.After(b.MatchDate)
		}
		if a.MatchTime != b.MatchTime {
			return a.MatchTime > b.MatchTime
		}
		// map iteration is random; fall back to insertion order for stability
		return a.CreatedAt.After(b.CreatedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// --- seasons ---

func (s *MemoryStore) GetSeason(_ context.Context, id string) (*models.Season, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	season, ok := s.seasons[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &season, nil
}

func (s *MemoryStore) CreateSeason(_ context.Context, season *models.Season) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if season.ID == "" {
		season.ID = uuid.NewString()
	}
	if _, ok := s.seasons[season.ID]; ok {
		return ErrConflict
	}
	now := s.stamp()
	season.CreatedAt, season.UpdatedAt = now, now
	s.seasons[season.ID] = *season
	return nil
}

func (s *MemoryStore) CloseSeason(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	season, ok := s.seasons[id]
	if !ok {
		return ErrNotFound
	}
	if season.ClosedAt != nil {
		return ErrConflict
	}
	season.ClosedAt = &at
	s.seasons[id] = season
	return nil
}

func (s *MemoryStore) ListOpenSeasons(context.Context) ([]models.Season, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Season
	for _, season := range s.seasons {
		if !season.IsClosed() {
			out = append(out, season)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

// --- deck type stats ---

func (s *MemoryStore) UpsertDeckTypeStat(_ context.Context, userID, deckType, seasonID string, delta StatDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := statKey{userID, deckType, seasonID}
	now := s.stamp()
	row, ok := s.stats[k]
	if !ok {
		s.stats[k] = &models.DeckTypeStat{
			ID:         uuid.NewString(),
			UserID:     userID,
			DeckType:   deckType,
			SeasonID:   seasonID,
			Wins:       delta.Wins,
			Losses:     delta.Losses,
			TotalGames: delta.TotalGames,
			Timestamps: models.Timestamps{CreatedAt: now, UpdatedAt: now},
		}
		s.statOrder = append(s.statOrder, k)
		return nil
	}
	row.Wins += delta.Wins
	row.Losses += delta.Losses
	row.TotalGames += delta.TotalGames
	row.UpdatedAt = now
	return nil
}

func (s *MemoryStore) ListDeckTypeStats(_ context.Context, seasonID string) ([]models.DeckTypeStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DeckTypeStat
	for _, k := range s.statOrder {
		if k.season == seasonID {
			out = append(out, *s.stats[k])
		}
	}
	return out, nil
}

// --- gym badges ---

func (s *MemoryStore) SeedCategoryBadges(_ context.Context, badges []models.CategoryBadge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range badges {
		s.badges[b.Category] = b
	}
	return nil
}

func (s *MemoryStore) ListCategoryBadges(context.Context) ([]models.CategoryBadge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CategoryBadge, 0, len(s.badges))
	for _, b := range s.badges {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (s *MemoryStore) ReassignCategoryHolder(_ context.Context, category, seasonID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := holderKey{category, seasonID}
	delete(s.holders, k)
	s.holders[k] = models.CategoryBadgeHolder{
		ID:            uuid.NewString(),
		UserID:        userID,
		BadgeCategory: category,
		SeasonID:      seasonID,
		AssignedAt:    s.stamp(),
	}
	return nil
}

func (s *MemoryStore) ListCategoryHolders(_ context.Context, seasonID string) ([]models.CategoryBadgeHolder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CategoryBadgeHolder
	for k, h := range s.holders {
		if k.season == seasonID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BadgeCategory < out[j].BadgeCategory })
	return out, nil
}

// --- achievements ---

func (s *MemoryStore) SeedAchievementDefinitions(_ context.Context, defs []models.AchievementDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range defs {
		s.defs[d.ID] = d
	}
	return nil
}

func (s *MemoryStore) ListAchievementDefinitions(context.Context) ([]models.AchievementDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AchievementDefinition, 0, len(s.defs))
	for _, d := range s.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) UpsertPlayerAchievement(_ context.Context, userID, achievementID, seasonID string, earnedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := achievementKey{userID, achievementID, seasonID}
	if _, ok := s.achievements[k]; ok {
		return nil
	}
	s.achievements[k] = &models.PlayerAchievement{
		ID:            uuid.NewString(),
		UserID:        userID,
		AchievementID: achievementID,
		SeasonID:      seasonID,
		EarnedAt:      earnedAt,
	}
	return nil
}

func (s *MemoryStore) ListPlayerAchievements(_ context.Context, userID, seasonID string) ([]models.PlayerAchievement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PlayerAchievement
	for k, a := range s.achievements {
		if k.user == userID && k.season == seasonID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EarnedAt.Equal(out[j].EarnedAt) {
			return out[i].EarnedAt.Before(out[j].EarnedAt)
		}
		return out[i].AchievementID < out[j].AchievementID
	})
	return out, nil
}

func (s *MemoryStore) SetCurrentAchievementFlags(_ context.Context, userID, seasonID, currentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, a := range s.achievements {
		if k.user == userID && k.season == seasonID {
			a.IsCurrent = currentID != "" && k.achievement == currentID
		}
	}
	return nil
}

// --- recompute tasks ---

func (s *MemoryStore) SaveRecomputeTask(_ context.Context, t *models.RecomputeTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Status == "" {
		t.Status = models.TaskPending
	}
	k := taskKey{t.MatchID, t.Step, t.UserID}
	now := s.stamp()
	if existing, ok := s.tasks[k]; ok {
		existing.Status = t.Status
		existing.LastError = t.LastError
		existing.NextAttemptAt = t.NextAttemptAt
		existing.DeckType = t.DeckType
		existing.Won = t.Won
		existing.UpdatedAt = now
		t.ID = existing.ID
		return nil
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt, t.UpdatedAt = now, now
	cp := *t
	s.tasks[k] = &cp
	return nil
}

func (s *MemoryStore) ListDueRecomputeTasks(_ context.Context, now time.Time, limit int) ([]models.RecomputeTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RecomputeTask
	for _, t := range s.tasks {
		if t.Status == models.TaskPending && !t.NextAttemptAt.After(now) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextAttemptAt.Before(out[j].NextAttemptAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateRecomputeTask(_ context.Context, t *models.RecomputeTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tasks {
		if existing.ID == t.ID {
			existing.Status = t.Status
			existing.Attempts = t.Attempts
			existing.LastError = t.LastError
			existing.NextAttemptAt = t.NextAttemptAt
			existing.UpdatedAt = s.stamp()
			return nil
		}
	}
	return ErrNotFound
}

var _ Store = (*MemoryStore)(nil)
