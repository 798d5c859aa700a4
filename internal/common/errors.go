// Package common defines shared constants and sentinel errors used across
// the synchronization engine. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Delta-protocol errors.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrBlockSizeRange   = errors.New("block size out of range")
	ErrBlockOutOfRange  = errors.New("block index out of range")

	// Storage collaborator failures. Wrapped around the backend's error so the
	// boundary can classify them as retryable.
	ErrStorageBackend = errors.New("storage backend error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired = errors.New("token expired")
)
