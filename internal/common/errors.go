// Package common defines shared constants and sentinel errors used across
// the authkeeper server layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")
	ErrForbidden  = errors.New("forbidden")
	ErrBadRequest = errors.New("bad request")

	// ErrStoreUnavailable wraps any failure of the underlying persistence.
	// It is always surfaced to the caller and never retried by the core.
	ErrStoreUnavailable = errors.New("store unavailable")

	// Credential errors. Unknown identifier and wrong secret are never told apart.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Access token verification errors.
	ErrTokenMalformed    = errors.New("token malformed")
	ErrTokenBadSignature = errors.New("token signature invalid")
	ErrTokenExpired      = errors.New("token expired")

	// Refresh token lifecycle errors.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")

	// ErrTokenCollision is returned when a freshly generated refresh token
	// already exists in the store. The caller retries with a new value.
	ErrTokenCollision = errors.New("refresh token collision")
)
