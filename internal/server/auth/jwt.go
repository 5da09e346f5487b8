// Package auth signs and verifies the short-lived access tokens (HS256 JWT).
// Verification only checks the signature and the expiry; access tokens are
// never stored.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// MinKeySize is the shortest accepted HMAC key.
const MinKeySize = 32

// Signer issues and verifies access tokens with a single HMAC key loaded at
// startup. It is safe for concurrent use.
type Signer struct {
	key    []byte
	method *jwt.SigningMethodHMAC
}

// NewSigner copies key. It rejects keys shorter than MinKeySize bytes.
func NewSigner(key []byte) (*Signer, error) {
	if len(key) < MinKeySize {
		return nil, fmt.Errorf("signing key must be at least %d bytes, got %d", MinKeySize, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Signer{key: k, method: jwt.SigningMethodHS256}, nil
}

// Issue returns a compact JWT for subject with iat = now (truncated to the
// second) and exp = iat + ttl. The same inputs always yield the same token.
func (s *Signer) Issue(subject string, now time.Time, ttl time.Duration) (string, error) {
	iat := now.Truncate(time.Second)
	token := jwt.NewWithClaims(s.method, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(iat.Add(ttl)),
	})

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks token at now and returns its subject.
//
// Errors: common.ErrTokenMalformed for anything unparsable or missing
// claims, common.ErrTokenBadSignature for a wrong key or any algorithm
// other than HS256, common.ErrTokenExpired once now >= exp.
func (s *Signer) Verify(token string, now time.Time) (string, error) {
	claims := &jwt.RegisteredClaims{}

	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", mapError(err)
	}

	if claims.Subject == "" {
		return "", common.ErrTokenMalformed
	}
	return claims.Subject, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return common.ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return common.ErrTokenBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return common.ErrTokenExpired
	default:
		return fmt.Errorf("%w: %w", common.ErrTokenMalformed, err)
	}
}
