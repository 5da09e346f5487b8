package users

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps identities in process memory. It backs the
// "memory" storage mode and service tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]*models.Identity
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*models.Identity)}
}

func (r *MemoryRepository) Create(_ context.Context, user *models.Identity) (*models.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.byID {
		if u.Email == user.Email || (user.Username != "" && u.Username == user.Username) {
			return nil, fmt.Errorf("user %q: %w", user.Email, common.ErrorAlreadyExists)
		}
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	r.byID[user.ID] = clone(user)
	return user, nil
}

func (r *MemoryRepository) FindByUsername(_ context.Context, username string) (*models.Identity, error) {
	return r.find(func(u *models.Identity) bool { return username != "" && u.Username == username })
}

func (r *MemoryRepository) FindByEmail(_ context.Context, email string) (*models.Identity, error) {
	return r.find(func(u *models.Identity) bool { return u.Email == email })
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*models.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(u), nil
}

func (r *MemoryRepository) find(match func(*models.Identity) bool) (*models.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.byID {
		if match(u) {
			return clone(u), nil
		}
	}
	return nil, common.ErrorNotFound
}

// LockByID only checks existence. The memory token store serializes
// writers on its own.
func (r *MemoryRepository) LockByID(_ context.Context, id string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.byID[id]; !ok {
		return common.ErrorNotFound
	}
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.byID, id)
	return nil
}

func clone(u *models.Identity) *models.Identity {
	c := *u
	c.Roles = slices.Clone(u.Roles)
	return &c
}
