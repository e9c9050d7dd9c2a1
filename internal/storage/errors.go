package storage

import "errors"

// Storage errors shared by all adapters.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition is returned by conditional status updates when
	// the stored status does not match the expected source state. Terminal
	// states are never left, so a prior result cannot be silently
	// overwritten.
	ErrInvalidTransition = errors.New("invalid status transition")
)
