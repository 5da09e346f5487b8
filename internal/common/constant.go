// Package common contains shared constants and sentinel errors used across
// authkeeper components.
package common

const (
	// AuthorizationHeaderName is the HTTP header / gRPC metadata key that
	// carries the bearer access token.
	AuthorizationHeaderName = "authorization"

	// BearerScheme is the only accepted authorization scheme.
	BearerScheme = "Bearer"

	// RefreshTokenBytes is the amount of entropy in an opaque refresh token.
	RefreshTokenBytes = 32
)
