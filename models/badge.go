package models

import (
	"time"
)

// CategoryBadge ("gym badge"): one per deck type, static config loaded from the catalog
type CategoryBadge struct {
	Category    string    `gorm:"primaryKey;type:varchar(32)" json:"category"` // canonical deck type, e.g. "fire"
	Name        string    `gorm:"not null" json:"name"`                        // "Volcano Badge"
	Description string    `json:"description"`
	IconURL     string    `gorm:"type:text" json:"icon_url,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// CategoryBadgeHolder is the single holder of a gym badge for a season.
// Reassignment deletes the previous row and inserts a new one.
type CategoryBadgeHolder struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string    `gorm:"index;not null" json:"user_id"`
	BadgeCategory string    `gorm:"uniqueIndex:idx_badge_holder_season;type:varchar(32);not null" json:"badge_category"`
	SeasonID      string    `gorm:"uniqueIndex:idx_badge_holder_season;not null" json:"season_id"`
	AssignedAt    time.Time `gorm:"not null" json:"assigned_at"`
}
