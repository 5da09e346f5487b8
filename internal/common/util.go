package common

import (
	"crypto/rand"
	"encoding/base64"
)

// MakeRandToken generates size random bytes and returns them encoded as
// URL-safe base64 without padding. Used for opaque refresh tokens.
func MakeRandToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// WipeByteArray overwrites b with zeros. Nil-safe.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
