package models

import (
	"time"
)

// DeckTypeStat is a player's win/loss record with one deck type in a season.
// Rows are created lazily on the first completed match and never deleted.
type DeckTypeStat struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID     string `gorm:"uniqueIndex:idx_deck_type_stat_key;not null" json:"user_id"`
	DeckType   string `gorm:"uniqueIndex:idx_deck_type_stat_key;type:varchar(32);not null" json:"deck_type"`
	SeasonID   string `gorm:"uniqueIndex:idx_deck_type_stat_key;index;not null" json:"season_id"`
	Wins       int64  `gorm:"not null;default:0" json:"wins"`
	Losses     int64  `gorm:"not null;default:0" json:"losses"`
	TotalGames int64  `gorm:"not null;default:0" json:"total_games"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
