// Package tokenstore keeps the single live refresh token of each user.
//
// Every backend guarantees that after Issue returns, the returned token is
// the only one stored for the user, even under concurrent calls for the
// same user. Calls for different users never block each other beyond
// the backend's own locking.
package tokenstore

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// Store is the refresh-token lifecycle used by the session service.
type Store interface {
	// Issue replaces any token of userID with a fresh random one expiring
	// TTL from now. A duplicate token value fails with
	// common.ErrTokenCollision and leaves the previous state untouched.
	Issue(ctx context.Context, userID string) (*models.RefreshToken, error)

	// Lookup is a pure read. Unknown tokens give common.ErrRefreshTokenNotFound.
	Lookup(ctx context.Context, token string) (*models.RefreshToken, error)

	// ValidateNotExpired returns nil while now is before rt.ExpiresAt.
	// Otherwise the token is deleted and common.ErrRefreshTokenExpired returned.
	ValidateNotExpired(ctx context.Context, rt *models.RefreshToken, now time.Time) error

	// RevokeAll deletes every token of userID. Revoking nothing is not an error.
	RevokeAll(ctx context.Context, userID string) error

	// DeleteExpired removes tokens expired at now and reports how many.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Option tunes a backend.
type Option func(*settings)

type settings struct {
	clock    timex.Clock
	newToken func() (string, error)
}

// WithClock sets the time source used for CreatedAt and ExpiresAt.
func WithClock(c timex.Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithTokenSource replaces the random token generator.
func WithTokenSource(f func() (string, error)) Option {
	return func(s *settings) { s.newToken = f }
}

func newSettings(opts []Option) settings {
	s := settings{
		clock:    timex.UTCNow,
		newToken: randomToken,
	}
	for _, o := range opts {
		o(&s)
	}
	return s
}

func randomToken() (string, error) {
	return common.MakeRandToken(common.RefreshTokenBytes)
}

func (s settings) mint(userID string, ttl time.Duration) (*models.RefreshToken, error) {
	token, err := s.newToken()
	if err != nil {
		return nil, err
	}
	now := s.clock()
	return &models.RefreshToken{
		Token:     token,
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}, nil
}
