package repository

import "errors"

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a conditional write matched no row because
	// the row is no longer in the expected state.
	ErrConflict = errors.New("conditional write conflict")
)
