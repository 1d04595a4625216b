package models

import "time"

// RequirementType selects the metric an achievement definition is checked against.
type RequirementType string

const (
	RequirementTotalWins  RequirementType = "totalWins"
	RequirementTotalGames RequirementType = "totalGames"
	RequirementWinStreak  RequirementType = "winStreak"
	RequirementTypeWins   RequirementType = "typeWins"
	RequirementTopPlayer  RequirementType = "topPlayer"
)

// Valid reports whether t is a known requirement type.
func (t RequirementType) Valid() bool {
	switch t {
	case RequirementTotalWins, RequirementTotalGames, RequirementWinStreak, RequirementTypeWins, RequirementTopPlayer:
		return true
	}
	return false
}

// AchievementDefinition is one rung of the pokeball ladder. Higher priority is more prestigious.
type AchievementDefinition struct {
	ID               string          `gorm:"primaryKey;type:varchar(32)" json:"id" yaml:"id"` // e.g. "master-ball"
	Name             string          `gorm:"not null" json:"name" yaml:"name"`
	Description      string          `json:"description" yaml:"description"`
	Kind             string          `gorm:"type:varchar(32);not null" json:"kind" yaml:"kind"` // ladder rung, e.g. "master_ball"
	RequirementType  RequirementType `gorm:"type:varchar(16);not null" json:"requirement_type" yaml:"requirement_type"`
	RequirementValue int64           `gorm:"not null" json:"requirement_value" yaml:"requirement_value"`
	Priority         int             `gorm:"index;not null" json:"priority" yaml:"priority"`
	IconURL          string          `gorm:"type:text" json:"icon_url,omitempty" yaml:"icon_url"`
}

// PlayerAchievement is an earned rung. Rows are never deleted; at most one per
// player and season has IsCurrent set.
type PlayerAchievement struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string    `gorm:"uniqueIndex:idx_player_achievement_key;not null" json:"user_id"`
	AchievementID string    `gorm:"uniqueIndex:idx_player_achievement_key;type:varchar(32);not null" json:"achievement_id"`
	SeasonID      string    `gorm:"uniqueIndex:idx_player_achievement_key;index;not null" json:"season_id"`
	EarnedAt      time.Time `gorm:"not null" json:"earned_at"`
	IsCurrent     bool      `gorm:"not null;default:false" json:"is_current"`
}
