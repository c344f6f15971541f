package domain

import "errors"

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert hits a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate")
	// ErrConflict is returned when a record is owned by someone else.
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput wraps validation failures on caller-supplied data.
	ErrInvalidInput = errors.New("invalid input")
)
