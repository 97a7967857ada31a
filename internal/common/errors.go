// Package common defines shared constants and sentinel errors used across
// client and server layers of planvault. Callers should use errors.Is to
// match these values.
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

	// ErrVersionConflict signals a rejected optimistic-concurrency write.
	// Wrapped by VersionConflictError, which carries the stored version.
	ErrVersionConflict = errors.New("version conflict")

	// ErrMalformedBlob signals a ciphertext payload below the minimum
	// authenticated-cipher size. Terminal; the blob is corrupt or the
	// client is buggy, not legitimately empty.
	ErrMalformedBlob = errors.New("malformed blob")

	// ErrForbidden signals a push by a recipient without edit permission.
	// Terminal, never retried.
	ErrForbidden = errors.New("forbidden")

	// Cryptographic failures. Never swallowed, never retried blindly.
	ErrAuthenticationFailure = errors.New("authentication failure")
	ErrUnwrapFailure         = errors.New("unwrap failure")

	// Client-side key/share material errors.
	ErrMissingKeys      = errors.New("missing local key material")
	ErrMissingShareMeta = errors.New("missing local share metadata")

	// ErrNetwork wraps transport-level failures.
	ErrNetwork = errors.New("network error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)

// VersionConflictError reports a rejected write together with the
// authoritative stored version, so the caller can pick its next version
// without re-polling. Matches ErrVersionConflict via errors.Is.
type VersionConflictError struct {
	Current int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict: current version is %d", e.Current)
}

func (e *VersionConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}
