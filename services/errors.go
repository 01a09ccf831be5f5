package services

import "errors"

// Sentinel error kinds surfaced by the service layer. Callers classify
// with errors.Is and map to transport codes; wrapped messages carry the
// detail.
var (
	// ErrValidation marks requests rejected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks operations on a nonexistent post, reply or user.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks failures that survive the bounded retry, such as
	// a get-or-create race that still cannot find the user afterwards.
	ErrConflict = errors.New("conflict")
)
