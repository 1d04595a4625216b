package models

import "time"

// RecomputeStep names one step of the post-completion pipeline.
type RecomputeStep string

const (
	StepRecordPlayer1   RecomputeStep = "record_player1"
	StepRecordPlayer2   RecomputeStep = "record_player2"
	StepReassignLeaders RecomputeStep = "reassign_leaders"
	StepAchievements1   RecomputeStep = "achievements_player1"
	StepAchievements2   RecomputeStep = "achievements_player2"
)

type RecomputeTaskStatus string

const (
	TaskPending   RecomputeTaskStatus = "pending"
	TaskDone      RecomputeTaskStatus = "done"
	TaskAbandoned RecomputeTaskStatus = "abandoned"
)

// RecomputeTask records a pipeline step that failed after a match completed,
// so it can be retried without re-running the steps that succeeded.
type RecomputeTask struct {
	ID            string              `gorm:"primaryKey;type:uuid" json:"id"`
	MatchID       string              `gorm:"uniqueIndex:idx_recompute_task_key;not null" json:"match_id"`
	Step          RecomputeStep       `gorm:"uniqueIndex:idx_recompute_task_key;type:varchar(32);not null" json:"step"`
	UserID        string              `gorm:"uniqueIndex:idx_recompute_task_key;not null;default:''" json:"user_id,omitempty"`
	SeasonID      string              `gorm:"index;not null" json:"season_id"`
	DeckType      string              `gorm:"type:varchar(32)" json:"deck_type,omitempty"`
	Won           bool                `json:"won"`
	Status        RecomputeTaskStatus `gorm:"type:varchar(16);index;not null;default:'pending'" json:"status"`
	Attempts      int                 `gorm:"not null;default:0" json:"attempts"`
	LastError     string              `gorm:"type:text" json:"last_error,omitempty"`
	NextAttemptAt time.Time           `gorm:"index" json:"next_attempt_at"`

	Timestamps
}
