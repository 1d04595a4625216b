package services

import (
	"errors"
	"fmt"
)

var (
	ErrMatchNotFound  = errors.New("match not found")
	ErrMatchClosed    = errors.New("match is closed for changes")
	ErrSeasonNotFound = errors.New("season not found")
)

// ValidationError reports malformed input. It is returned before anything is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthorizationError reports a write by someone who does not own the slot.
type AuthorizationError struct {
	UserID  string
	MatchID string
	Action  string
}

func (e *AuthorizationError) Error() string {
	action := e.Action
	if action == "" {
		action = "modify match"
	}
	return fmt.Sprintf("user %q may not %s %s", e.UserID, action, e.MatchID)
}

type ConsensusErrorKind string

const (
	WinnerMismatch ConsensusErrorKind = "winner_mismatch"
	Incomplete     ConsensusErrorKind = "incomplete"
)

// ConsensusError explains why a match cannot complete yet.
type ConsensusError struct {
	Kind        ConsensusErrorKind
	MatchID     string
	Player1Pick string
	Player2Pick string
	Missing     []string
}

func (e *ConsensusError) Error() string {
	switch e.Kind {
	case WinnerMismatch:
		return fmt.Sprintf("match %s: winner selections disagree (%q vs %q)", e.MatchID, e.Player1Pick, e.Player2Pick)
	default:
		return fmt.Sprintf("match %s: evidence incomplete %v", e.MatchID, e.Missing)
	}
}

// PersistenceError wraps a store failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
