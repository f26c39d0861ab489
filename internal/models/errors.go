// internal/models/errors.go
package models

import "errors"

var (
	// ErrInvalidInput marks requests rejected before entering the engine.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks lookups of records that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrPersistenceUnavailable marks retryable storage failures.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)
