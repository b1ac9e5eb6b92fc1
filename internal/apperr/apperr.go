// Package apperr defines the error classes every domain package wraps its
// sentinel errors with. Handlers translate classes to HTTP status codes, so
// a new domain sentinel gets a sensible response without touching the API
// layer.
package apperr

import "errors"

var (
	// ErrNotFound marks errors for absent entities.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks errors where an entity is not in the expected state.
	ErrConflict = errors.New("conflict")

	// ErrInsufficientStock marks quantity decrements that would go negative.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalid marks rejected input.
	ErrInvalid = errors.New("invalid input")
)
