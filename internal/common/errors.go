// Package common contains shared constants, utilities and sentinel errors
// used across TimeGrid client components. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Backend call classification. The API client maps transport and HTTP
	// status failures onto these; the sync engine keys its drain policy off
	// them.
	ErrValidation   = errors.New("validation error")
	ErrUnavailable  = errors.New("server unavailable")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrServer       = errors.New("server error")

	// Queue errors.
	ErrOperationNotFound = errors.New("operation not found")
)
