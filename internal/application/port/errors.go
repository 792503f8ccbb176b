package port

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned when a compare-and-swap write finds the
	// stored version differs from the version the caller read
	ErrVersionConflict = errors.New("version conflict")

	// ErrUniqueViolation is returned when a write breaks a uniqueness constraint
	ErrUniqueViolation = errors.New("unique constraint violation")
)
