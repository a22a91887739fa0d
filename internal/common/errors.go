// Package common defines shared sentinel errors used across filedrop
// components. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Auth errors (invalid or malformed bearer token).
	ErrInvalidToken = errors.New("invalid token")

	// Token layer errors. The HTTP boundary collapses all three into a
	// single access-denied response so callers cannot probe the scheme.
	ErrInvalidSignature = errors.New("invalid signature")
	ErrTokenExpired     = errors.New("token expired")
	ErrMalformedToken   = errors.New("malformed token")

	// Multipart session errors.
	ErrSessionNotFound = errors.New("upload session not found")
	ErrSessionClosed   = errors.New("upload session closed")

	// ErrAssemblyFailed signals a transient store-side failure during
	// multipart assembly. Retryable with identical inputs: finalize is
	// idempotent.
	ErrAssemblyFailed = errors.New("assembly failed")

	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrIncompletePartSet = errors.New("incomplete part set")
)

// QuotaExceededError carries the sizes involved in a quota rejection. Both
// values are safe to reveal to the file's own owner. Matches
// ErrQuotaExceeded under errors.Is.
type QuotaExceededError struct {
	RequestedBytes int64
	RemainingBytes int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: requested %d bytes, %d bytes remaining", e.RequestedBytes, e.RemainingBytes)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// IncompletePartSetError reports which part numbers are missing or duplicated
// so the client can repair the set and retry the completion call. Matches
// ErrIncompletePartSet under errors.Is.
type IncompletePartSetError struct {
	Missing   []int32
	Duplicate []int32
}

func (e *IncompletePartSetError) Error() string {
	return fmt.Sprintf("incomplete part set: missing %v, duplicate %v", e.Missing, e.Duplicate)
}

func (e *IncompletePartSetError) Is(target error) bool {
	return target == ErrIncompletePartSet
}
