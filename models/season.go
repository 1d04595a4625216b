package models

import "time"

// Season scopes matches, deck-type stats, gym badges and pokeballs.
type Season struct {
	ID       string     `gorm:"primaryKey;type:uuid" json:"id"`
	Name     string     `gorm:"not null" json:"name"`
	Slug     string     `gorm:"uniqueIndex;not null" json:"slug"`
	StartsAt time.Time  `json:"starts_at"`
	ClosedAt *time.Time `gorm:"index" json:"closed_at,omitempty"`

	Timestamps
}

// IsClosed reports whether the season no longer accepts match changes.
func (s *Season) IsClosed() bool {
	return s != nil && s.ClosedAt != nil
}
