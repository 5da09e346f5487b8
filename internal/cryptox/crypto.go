// Package cryptox wraps password hashing. Hashes are bcrypt with a cost
// fixed at construction so every comparison performs the same work.
package cryptox

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is used when a Hasher is built with cost 0.
const DefaultCost = 12

// ErrMismatch is returned by Compare when the secret does not match the hash.
var ErrMismatch = errors.New("password mismatch")

// Hasher hashes and compares secrets with a pinned bcrypt cost.
type Hasher struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
	dummyErr  error
}

// NewHasher validates cost against bcrypt's bounds. Zero selects DefaultCost.
func NewHasher(cost int) (*Hasher, error) {
	if cost == 0 {
		cost = DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d,%d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Hasher{cost: cost}, nil
}

// Cost reports the configured bcrypt cost.
func (h *Hasher) Cost() int { return h.cost }

// Hash returns the bcrypt hash of secret.
func (h *Hasher) Hash(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Compare checks secret against hash in constant time.
// It returns ErrMismatch for a wrong secret and a wrapped error for a
// corrupt hash.
func (h *Hasher) Compare(hash, secret string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrMismatch
	default:
		return fmt.Errorf("compare password: %w", err)
	}
}

// CompareDummy burns one comparison against a fixed hash of the same cost.
// Used when the account does not exist so the response time matches a
// real mismatch. The result is always ErrMismatch unless hashing failed.
func (h *Hasher) CompareDummy(secret string) error {
	h.dummyOnce.Do(func() {
		h.dummy, h.dummyErr = bcrypt.GenerateFromPassword([]byte("authkeeper-dummy-secret"), h.cost)
	})
	if h.dummyErr != nil {
		return fmt.Errorf("dummy hash: %w", h.dummyErr)
	}
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(secret))
	return ErrMismatch
}
