// Package services contains server-side business logic: credential
// verification, the session lifecycle and account management.
package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
)

// IdentityDirectory resolves identities. Misses are common.ErrorNotFound;
// any other failure wraps common.ErrStoreUnavailable.
type IdentityDirectory interface {
	FindUserByIdentifier(ctx context.Context, identifier string) (*models.Identity, error)
	FindUserByID(ctx context.Context, id string) (*models.Identity, error)
}

// UserDirectory implements IdentityDirectory over a users.Repository.
type UserDirectory struct {
	users users.Repository
}

func NewUserDirectory(r users.Repository) *UserDirectory {
	return &UserDirectory{users: r}
}

// FindUserByIdentifier matches the login name first and falls back to email.
func (d *UserDirectory) FindUserByIdentifier(ctx context.Context, identifier string) (*models.Identity, error) {
	u, err := d.users.FindByUsername(ctx, identifier)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, unavailable(err)
	}

	u, err = d.users.FindByEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, unavailable(err)
	}
	return u, nil
}

func (d *UserDirectory) FindUserByID(ctx context.Context, id string) (*models.Identity, error) {
	u, err := d.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, unavailable(err)
	}
	return u, nil
}

// unavailable makes sure err carries common.ErrStoreUnavailable.
func unavailable(err error) error {
	if errors.Is(err, common.ErrStoreUnavailable) {
		return err
	}
	return errors.Join(common.ErrStoreUnavailable, err)
}
