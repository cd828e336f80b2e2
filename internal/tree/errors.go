package tree

import (
	"errors"
	"fmt"
)

// Error taxonomy. Repositories return ErrNotFound and ErrConflict directly;
// anything else they return is surfaced as ErrStorageFailure.
var (
	// ErrNotFound is returned when a note, parent or anchor is missing or
	// belongs to another organization.
	ErrNotFound = errors.New("not found")
	// ErrInvalidMove is returned for a reparent that would create a cycle.
	ErrInvalidMove = errors.New("invalid move")
	// ErrInvalidReference is returned when an anchor is not a sibling under the
	// target parent, or a parent belongs to another organization.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrConflict is returned when the store detects a concurrent modification.
	ErrConflict = errors.New("conflict")
	// ErrStorageFailure wraps repository faults.
	ErrStorageFailure = errors.New("storage failure")
	// ErrInvalidInput is returned for malformed arguments.
	ErrInvalidInput = errors.New("invalid input")
)

var domainErrors = []error{
	ErrNotFound, ErrInvalidMove, ErrInvalidReference,
	ErrConflict, ErrStorageFailure, ErrInvalidInput,
}

// IsDomainError reports whether err already carries one of the sentinels above.
func IsDomainError(err error) bool {
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return true
		}
	}
	return false
}

// classify wraps err as ErrStorageFailure unless it is already a domain error.
func classify(err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageFailure, err)
}

// errorKind is the metric label for err.
func errorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidMove):
		return "invalid_move"
	case errors.Is(err, ErrInvalidReference):
		return "invalid_reference"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "storage_failure"
	}
}
