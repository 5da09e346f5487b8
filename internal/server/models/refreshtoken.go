package models

import "time"

// RefreshToken is the single live refresh credential of a user.
// The token value is opaque; it is never derived from user data.
type RefreshToken struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ExpiredAt reports whether the token is no longer usable at now.
// A token is expired from its expiry instant onward.
func (t *RefreshToken) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
