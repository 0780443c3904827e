// Package apperr defines the sentinel errors shared across sitefeed layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidInput  = errors.New("invalid input")

	// ErrBackendUnavailable marks a failed search backend call. Callers surface
	// it as "search unavailable"; it is never retried.
	ErrBackendUnavailable = errors.New("search backend unavailable")
)
