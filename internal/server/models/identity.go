// Package models defines server-side data models persisted in the database.
package models

import (
	"slices"
	"time"
)

// Role is an authorization tag attached to an Identity.
type Role string

const (
	RoleUser  Role = "ROLE_USER"
	RoleAdmin Role = "ROLE_ADMIN"
)

// Identity is a registered account. Username is optional; Email is unique
// and always present. PasswordHash is a bcrypt hash.
type Identity struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Roles        []Role
	// AvatarKey is the object-storage key of the profile picture, if any.
	AvatarKey string
	CreatedAt time.Time
}

// HasRole reports whether r is among the identity's roles.
func (i *Identity) HasRole(r Role) bool {
	return slices.Contains(i.Roles, r)
}

// Summary returns the caller-facing view of the identity.
func (i *Identity) Summary() IdentitySummary {
	roles := make([]string, len(i.Roles))
	for n, r := range i.Roles {
		roles[n] = string(r)
	}
	return IdentitySummary{
		ID:       i.ID,
		Username: i.Username,
		Email:    i.Email,
		Roles:    roles,
	}
}

// IdentitySummary is returned to clients after sign-in and from /auth/me.
type IdentitySummary struct {
	ID       string   `json:"id"`
	Username string   `json:"identifier"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}
