// Package users stores identities and their roles.
package users

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository is the identity store. Finders return common.ErrorNotFound
// when nothing matches; other failures wrap common.ErrStoreUnavailable.
type Repository interface {
	// Create inserts the identity and its roles. An empty ID is filled in.
	// A duplicate username or email yields common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.Identity) (*models.Identity, error)
	FindByUsername(ctx context.Context, username string) (*models.Identity, error)
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
	FindByID(ctx context.Context, id string) (*models.Identity, error)
	// LockByID takes a row lock on the identity for the rest of the
	// enclosing transaction.
	LockByID(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}
