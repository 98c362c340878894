package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a guarded update matched no row because
	// the stored state changed since it was read.
	ErrConflict = errors.New("concurrent modification")

	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("duplicate entity")
)
