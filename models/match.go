package models

import "time"

// MatchStatus is the lifecycle state of a scheduled match.
type MatchStatus string

const (
	MatchStatusScheduled MatchStatus = "scheduled"
	MatchStatusCompleted MatchStatus = "completed"
	MatchStatusCancelled MatchStatus = "cancelled"
)

// Slot identifies one of the two participant slots of a match.
type Slot int

const (
	SlotPlayer1 Slot = 1
	SlotPlayer2 Slot = 2
)

func (s Slot) String() string {
	switch s {
	case SlotPlayer1:
		return "player1"
	case SlotPlayer2:
		return "player2"
	default:
		return "unknown"
	}
}

// Valid reports whether s names one of the two slots.
func (s Slot) Valid() bool {
	return s == SlotPlayer1 || s == SlotPlayer2
}

// MatchSlot is the evidence one participant submits for a match.
type MatchSlot struct {
	EvidenceImageRef *string    `json:"evidence_image_ref,omitempty" gorm:"type:text"`
	DamagePoints     *int       `json:"damage_points,omitempty"`
	WinnerSelection  *string    `json:"winner_selection,omitempty" gorm:"type:varchar(64)"`
	DeckType         *string    `json:"deck_type,omitempty" gorm:"type:varchar(32)"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
}

// HasImage reports whether a screenshot was attached.
func (s MatchSlot) HasImage() bool {
	return s.EvidenceImageRef != nil && *s.EvidenceImageRef != ""
}

// IsComplete reports whether image, damage and winner are all present.
func (s MatchSlot) IsComplete() bool {
	return s.HasImage() && s.DamagePoints != nil && s.WinnerSelection != nil && *s.WinnerSelection != ""
}

// Clone returns a deep copy so callers never share pointer fields.
func (s MatchSlot) Clone() MatchSlot {
	out := MatchSlot{}
	if s.EvidenceImageRef != nil {
		v := *s.EvidenceImageRef
		out.EvidenceImageRef = &v
	}
	if s.DamagePoints != nil {
		v := *s.DamagePoints
		out.DamagePoints = &v
	}
	if s.WinnerSelection != nil {
		v := *s.WinnerSelection
		out.WinnerSelection = &v
	}
	if s.DeckType != nil {
		v := *s.DeckType
		out.DeckType = &v
	}
	if s.SubmittedAt != nil {
		v := *s.SubmittedAt
		out.SubmittedAt = &v
	}
	return out
}

// Match is a single head-to-head contest between two players in a season.
type Match struct {
	ID        string `gorm:"primaryKey;type:uuid" json:"id"`
	SeasonID  string `gorm:"index;not null" json:"season_id"`
	Player1ID string `gorm:"index;not null" json:"player1_id"`
	Player2ID string `gorm:"index;not null" json:"player2_id"`

	// Completed matches are ordered by date desc, then time desc.
	MatchDate time.Time `gorm:"type:date;index;not null" json:"match_date"`
	MatchTime string    `gorm:"type:varchar(5);not null;default:'00:00'" json:"match_time"` // HH:MM

	Status MatchStatus `gorm:"type:varchar(16);index;not null;default:'scheduled'" json:"status"`

	Player1Slot MatchSlot `gorm:"embedded;embeddedPrefix:player1_" json:"player1_slot"`
	Player2Slot MatchSlot `gorm:"embedded;embeddedPrefix:player2_" json:"player2_slot"`

	WinnerID     *string `gorm:"type:varchar(64);index" json:"winner_id,omitempty"`
	Player1Score int     `gorm:"default:0" json:"player1_score"`
	Player2Score int     `gorm:"default:0" json:"player2_score"`

	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
	ScheduledBy  string     `json:"scheduled_by,omitempty"`

	Timestamps
}

// SlotOf returns the slot owned by userID.
func (m *Match) SlotOf(userID string) (Slot, bool) {
	switch userID {
	case m.Player1ID:
		return SlotPlayer1, true
	case m.Player2ID:
		return SlotPlayer2, true
	default:
		return 0, false
	}
}

// Slot returns the evidence held in slot s.
func (m *Match) Slot(s Slot) MatchSlot {
	if s == SlotPlayer2 {
		return m.Player2Slot
	}
	return m.Player1Slot
}

// SetSlot replaces the evidence held in slot s.
func (m *Match) SetSlot(s Slot, slot MatchSlot) {
	if s == SlotPlayer2 {
		m.Player2Slot = slot
		return
	}
	m.Player1Slot = slot
}

// ParticipantID returns the user owning slot s.
func (m *Match) ParticipantID(s Slot) string {
	if s == SlotPlayer2 {
		return m.Player2ID
	}
	return m.Player1ID
}

// IsParticipant reports whether userID plays in the match.
func (m *Match) IsParticipant(userID string) bool {
	_, ok := m.SlotOf(userID)
	return ok
}

// Clone returns a deep copy of the match.
func (m *Match) Clone() *Match {
	out := *m
	out.Player1Slot = m.Player1Slot.Clone()
	out.Player2Slot = m.Player2Slot.Clone()
	if m.WinnerID != nil {
		v := *m.WinnerID
		out.WinnerID = &v
	}
	if m.CompletedAt != nil {
		v := *m.CompletedAt
		out.CompletedAt = &v
	}
	if m.CancelledAt != nil {
		v := *m.CancelledAt
		out.CancelledAt = &v
	}
	return &out
}
