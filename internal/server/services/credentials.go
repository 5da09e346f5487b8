package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"golang.org/x/sync/semaphore"
)

// CredentialVerifier checks an identifier and password pair.
type CredentialVerifier struct {
	dir    IdentityDirectory
	hasher *cryptox.Hasher
	slots  *semaphore.Weighted
}

// NewCredentialVerifier allows at most concurrency bcrypt comparisons at once.
func NewCredentialVerifier(dir IdentityDirectory, hasher *cryptox.Hasher, concurrency int) *CredentialVerifier {
	if concurrency < 1 {
		concurrency = 1
	}
	return &CredentialVerifier{
		dir:    dir,
		hasher: hasher,
		slots:  semaphore.NewWeighted(int64(concurrency)),
	}
}

// Verify returns the identity whose password matches secret.
//
// An unknown identifier and a wrong password both give
// common.ErrInvalidCredentials after the same amount of hashing work.
// Directory outages give common.ErrStoreUnavailable.
func (v *CredentialVerifier) Verify(ctx context.Context, identifier, secret string) (*models.Identity, error) {
	user, err := v.dir.FindUserByIdentifier(ctx, identifier)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	if err := v.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer v.slots.Release(1)

	if user == nil {
		_ = v.hasher.CompareDummy(secret)
		return nil, common.ErrInvalidCredentials
	}

	if err := v.hasher.Compare(user.PasswordHash, secret); err != nil {
		if errors.Is(err, cryptox.ErrMismatch) {
			return nil, common.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: stored hash for %s: %w", common.ErrorInternal, user.ID, err)
	}
	return user, nil
}
