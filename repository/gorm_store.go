package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"card-league-system/models"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on postgres through gorm.
type GormStore struct {
	DB     *gorm.DB
	Logger *slog.Logger
}

// NewGormStore wraps an open gorm handle.
func NewGormStore(db *gorm.DB, logger *slog.Logger) *GormStore {
	return &GormStore{DB: db, Logger: logger}
}

// OpenPostgres connects to dsn and returns a GormStore.
func OpenPostgres(dsn string, logger *slog.Logger) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewGormStore(db, logger), nil
}

func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.DB.WithContext(ctx).AutoMigrate(
		&models.Season{},
		&models.Match{},
		&models.DeckTypeStat{},
		&models.CategoryBadge{},
		&models.CategoryBadgeHolder{},
		&models.AchievementDefinition{},
		&models.PlayerAchievement{},
		&models.RecomputeTask{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// --- matches ---

func (s *GormStore) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	// ids are uuid columns; anything else cannot exist
	if uuid.Validate(id) != nil {
		return nil, ErrNotFound
	}
	var m models.Match
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *GormStore) CreateMatch(ctx context.Context, m *models.Match) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = models.MatchStatusScheduled
	}
	return s.DB.WithContext(ctx).Create(m).Error
}

func slotColumns(slot models.Slot, v models.MatchSlot) map[string]any {
	p := slot.String() + "_"
	return map[string]any{
		p + "evidence_image_ref": v.EvidenceImageRef,
		p + "damage_points":      v.DamagePoints,
		p + "winner_selection":   v.WinnerSelection,
		p + "deck_type":          v.DeckType,
		p + "submitted_at":       v.SubmittedAt,
	}
}

// conditionalMiss distinguishes a missing row from one in the wrong state.
func (s *GormStore) conditionalMiss(ctx context.Context, id string) error {
	var n int64
	if err := s.DB.WithContext(ctx).Model(&models.Match{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

func (s *GormStore) UpdateMatchSlot(ctx context.Context, id string, slot models.Slot, value models.MatchSlot) error {
	if !slot.Valid() {
		return fmt.Errorf("invalid slot %d", slot)
	}
	if uuid.Validate(id) != nil {
		return ErrNotFound
	}
	res := s.DB.WithContext(ctx).Model(&models.Match{}).
		Where("id = ? AND status = ?", id, models.MatchStatusScheduled).
		Updates(slotColumns(slot, value))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.conditionalMiss(ctx, id)
	}
	return nil
}

func (s *GormStore) TransitionMatchToCompleted(ctx context.Context, id, winnerID string, player1Score, player2Score int) error {
	if uuid.Validate(id) != nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	res := s.DB.WithContext(ctx).Model(&models.Match{}).
		Where("id = ? AND status = ?", id, models.MatchStatusScheduled).
		Updates(map[string]any{
			"status":        models.MatchStatusCompleted,
			"winner_id":     winnerID,
			"player1_score": player1Score,
			"player2_score": player2Score,
			"completed_at":  now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.conditionalMiss(ctx, id)
	}
	return nil
}

func (s *GormStore) CancelMatch(ctx context.Context, id, reason string) error {
	if uuid.Validate(id) != nil {
		return ErrNotFound
	}
	res := s.DB.WithContext(ctx).Model(&models.Match{}).
		Where("id = ? AND status = ?", id, models.MatchStatusScheduled).
		Updates(map[string]any{
			"status":        models.MatchStatusCancelled,
			"cancelled_at":  time.Now().UTC(),
			"cancel_reason": reason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.conditionalMiss(ctx, id)
	}
	return nil
}

func (s *GormStore) ListCompletedMatches(ctx context.Context, q CompletedMatchQuery) ([]models.Match, error) {
	tx := s.DB.WithContext(ctx).
		Where("season_id = ? AND status = ?", q.SeasonID, models.MatchStatusCompleted)
	if q.UserID != "" {
		tx = tx.Where("(player1_id = ? OR player2_id = ?)", q.UserID, q.UserID)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var out []models.Match
	if err := tx.Order("match_date DESC, match_time DESC, created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// --- seasons ---

func (s *GormStore) GetSeason(ctx context.Context, id string) (*models.Season, error) {
	if uuid.Validate(id) != nil {
		return nil, ErrNotFound
	}
	var season models.Season
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&season).Error; err != nil {
		return nil, notFound(err)
	}
	return &season, nil
}

func (s *GormStore) CreateSeason(ctx context.Context, season *models.Season) error {
	if season.ID == "" {
		season.ID = uuid.NewString()
	}
	return s.DB.WithContext(ctx).Create(season).Error
}

func (s *GormStore) CloseSeason(ctx context.Context, id string, at time.Time) error {
	if uuid.Validate(id) != nil {
		return ErrNotFound
	}
	res := s.DB.WithContext(ctx).Model(&models.Season{}).
		Where("id = ? AND closed_at IS NULL", id).
		Update("closed_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetSeason(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

func (s *GormStore) ListOpenSeasons(ctx context.Context) ([]models.Season, error) {
	var out []models.Season
	err := s.DB.WithContext(ctx).Where("closed_at IS NULL").Order("starts_at ASC").Find(&out).Error
	return out, err
}

// --- deck type stats ---

func (s *GormStore) UpsertDeckTypeStat(ctx context.Context, userID, deckType, seasonID string, delta StatDelta) error {
	row := models.DeckTypeStat{
		ID:         uuid.NewString(),
		UserID:     userID,
		DeckType:   deckType,
		SeasonID:   seasonID,
		Wins:       delta.Wins,
		Losses:     delta.Losses,
		TotalGames: delta.TotalGames,
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "deck_type"}, {Name: "season_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"wins":        gorm.Expr("deck_type_stats.wins + EXCLUDED.wins"),
			"losses":      gorm.Expr("deck_type_stats.losses + EXCLUDED.losses"),
			"total_games": gorm.Expr("deck_type_stats.total_games + EXCLUDED.total_games"),
			"updated_at":  time.Now().UTC(),
		}),
	}).Create(&row).Error
}

func (s *GormStore) ListDeckTypeStats(ctx context.Context, seasonID string) ([]models.DeckTypeStat, error) {
	var out []models.DeckTypeStat
	err := s.DB.WithContext(ctx).
		Where("season_id = ?", seasonID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// --- gym badges ---

func (s *GormStore) SeedCategoryBadges(ctx context.Context, badges []models.CategoryBadge) error {
	if len(badges) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "category"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "icon_url"}),
	}).Create(&badges).Error
}

func (s *GormStore) ListCategoryBadges(ctx context.Context) ([]models.CategoryBadge, error) {
	var out []models.CategoryBadge
	err := s.DB.WithContext(ctx).Order("category ASC").Find(&out).Error
	return out, err
}

func (s *GormStore) ReassignCategoryHolder(ctx context.Context, category, seasonID, userID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("badge_category = ? AND season_id = ?", category, seasonID).
			Delete(&models.CategoryBadgeHolder{}).Error; err != nil {
			return err
		}
		holder := models.CategoryBadgeHolder{
			ID:            uuid.NewString(),
			UserID:        userID,
			BadgeCategory: category,
			SeasonID:      seasonID,
			AssignedAt:    time.Now().UTC(),
		}
		// A concurrent reassignment may insert between our delete and insert;
		// the unique index keeps one holder and the later write wins.
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "badge_category"}, {Name: "season_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "assigned_at"}),
		}).Create(&holder).Error
	})
}

func (s *GormStore) ListCategoryHolders(ctx context.Context, seasonID string) ([]models.CategoryBadgeHolder, error) {
	var out []models.CategoryBadgeHolder
	err := s.DB.WithContext(ctx).Where("season_id = ?", seasonID).Order("badge_category ASC").Find(&out).Error
	return out, err
}

// --- achievements ---

func (s *GormStore) SeedAchievementDefinitions(ctx context.Context, defs []models.AchievementDefinition) error {
	if len(defs) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&defs).Error
}

func (s *GormStore) ListAchievementDefinitions(ctx context.Context) ([]models.AchievementDefinition, error) {
	var out []models.AchievementDefinition
	err := s.DB.WithContext(ctx).Order("priority DESC").Find(&out).Error
	return out, err
}

func (s *GormStore) UpsertPlayerAchievement(ctx context.Context, userID, achievementID, seasonID string, earnedAt time.Time) error {
	row := models.PlayerAchievement{
		ID:            uuid.NewString(),
		UserID:        userID,
		AchievementID: achievementID,
		SeasonID:      seasonID,
		EarnedAt:      earnedAt,
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "achievement_id"}, {Name: "season_id"}},
		DoNothing: true,
	}).Create(&row).Error
}

func (s *GormStore) ListPlayerAchievements(ctx context.Context, userID, seasonID string) ([]models.PlayerAchievement, error) {
	var out []models.PlayerAchievement
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND season_id = ?", userID, seasonID).
		Order("earned_at ASC").
		Find(&out).Error
	return out, err
}

func (s *GormStore) SetCurrentAchievementFlags(ctx context.Context, userID, seasonID, currentID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PlayerAchievement{}).
			Where("user_id = ? AND season_id = ? AND achievement_id <> ?", userID, seasonID, currentID).
			Update("is_current", false).Error; err != nil {
			return err
		}
		if currentID == "" {
			return nil
		}
		return tx.Model(&models.PlayerAchievement{}).
			Where("user_id = ? AND season_id = ? AND achievement_id = ?", userID, seasonID, currentID).
			Update("is_current", true).Error
	})
}

// --- recompute tasks ---

func (s *GormStore) SaveRecomputeTask(ctx context.Context, t *models.RecomputeTask) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = models.TaskPending
	}
	// On conflict the existing row keeps its id; RETURNING copies it back into t.
	return s.DB.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "match_id"}, {Name: "step"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "last_error", "next_attempt_at", "deck_type", "won", "updated_at",
			}),
		},
		clause.Returning{Columns: []clause.Column{{Name: "id"}}},
	).Create(t).Error
}

func (s *GormStore) ListDueRecomputeTasks(ctx context.Context, now time.Time, limit int) ([]models.RecomputeTask, error) {
	tx := s.DB.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", models.TaskPending, now).
		Order("next_attempt_at ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	var out []models.RecomputeTask
	err := tx.Find(&out).Error
	return out, err
}

func (s *GormStore) UpdateRecomputeTask(ctx context.Context, t *models.RecomputeTask) error {
	res := s.DB.WithContext(ctx).Model(&models.RecomputeTask{}).
		Where("id = ?", t.ID).
		Updates(map[string]any{
			"status":          t.Status,
			"attempts":        t.Attempts,
			"last_error":      t.LastError,
			"next_attempt_at": t.NextAttemptAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*GormStore)(nil)
