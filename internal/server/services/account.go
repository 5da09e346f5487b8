package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/authkeeper/internal/server/tokenstore"
)

// AvatarStore removes profile pictures from object storage.
type AvatarStore interface {
	Delete(ctx context.Context, key string) error
}

// AccountService creates and deletes identities.
type AccountService struct {
	users   users.Repository
	hasher  *cryptox.Hasher
	store   tokenstore.Store
	avatars AvatarStore
	log     logging.Logger
}

// NewAccountService builds the service. avatars may be nil when no object
// storage is configured.
func NewAccountService(r users.Repository, hasher *cryptox.Hasher, store tokenstore.Store, avatars AvatarStore, log logging.Logger) *AccountService {
	if log == nil {
		log = logging.Nop{}
	}
	return &AccountService{users: r, hasher: hasher, store: store, avatars: avatars, log: log}
}

// NewIdentity describes an account to create.
type NewIdentity struct {
	Username string
	Email    string
	Password string
	Roles    []models.Role
}

// Register hashes the password and stores the identity. Without explicit
// roles the account gets models.RoleUser.
func (s *AccountService) Register(ctx context.Context, in NewIdentity) (*models.Identity, error) {
	if in.Email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", common.ErrBadRequest)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}

	roles := in.Roles
	if len(roles) == 0 {
		roles = []models.Role{models.RoleUser}
	}

	u, err := s.users.Create(ctx, &models.Identity{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Roles:        roles,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "identity created", "user_id", u.ID)
	return u, nil
}

// EnsureAdmin creates the bootstrap administrator unless an identity with
// that email already exists. It reports whether an account was created.
func (s *AccountService) EnsureAdmin(ctx context.Context, username, email, password string) (bool, error) {
	_, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return false, err
	}

	_, err = s.Register(ctx, NewIdentity{
		Username: username,
		Email:    email,
		Password: password,
		Roles:    []models.Role{models.RoleAdmin, models.RoleUser},
	})
	if errors.Is(err, common.ErrorAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes targetID on behalf of actor. Users may delete themselves;
// admins may delete anyone. The refresh token goes first, then the avatar,
// then the identity. A failed avatar delete is logged and does not stop
// the account removal.
func (s *AccountService) Delete(ctx context.Context, actor *models.Identity, targetID string) error {
	if actor == nil || (actor.ID != targetID && !actor.HasRole(models.RoleAdmin)) {
		return common.ErrForbidden
	}

	target, err := s.users.FindByID(ctx, targetID)
	if err != nil {
		return err
	}

	// Revoke after the row is gone so a sign-in racing the delete cannot
	// leave a token behind in a store that does not cascade.
	if err := s.users.Delete(ctx, target.ID); err != nil {
		return err
	}

	if err := s.store.RevokeAll(ctx, target.ID); err != nil {
		return err
	}

	if target.AvatarKey != "" && s.avatars != nil {
		if err := s.avatars.Delete(ctx, target.AvatarKey); err != nil {
			s.log.Warn(ctx, "avatar delete failed", "user_id", target.ID, "key", target.AvatarKey, "error", err)
		}
	}
	s.log.Info(ctx, "identity deleted", "user_id", target.ID, "actor", actor.ID)
	return nil
}
