package tokenstore

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// MemoryStore keeps tokens in process memory behind a single mutex.
type MemoryStore struct {
	ttl time.Duration
	settings

	mu      sync.Mutex
	byToken map[string]models.RefreshToken
	byUser  map[string]string
}

func NewMemoryStore(ttl time.Duration, opts ...Option) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		settings: newSettings(opts),
		byToken:  make(map[string]models.RefreshToken),
		byUser:   make(map[string]string),
	}
}

func (s *MemoryStore) Issue(_ context.Context, userID string) (*models.RefreshToken, error) {
	rt, err := s.mint(userID, s.ttl)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byToken[rt.Token]; taken {
		return nil, common.ErrTokenCollision
	}

	if old, ok := s.byUser[userID]; ok {
		delete(s.byToken, old)
	}
	s.byToken[rt.Token] = *rt
	s.byUser[userID] = rt.Token

	return rt, nil
}

func (s *MemoryStore) Lookup(_ context.Context, token string) (*models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.byToken[token]
	if !ok {
		return nil, common.ErrRefreshTokenNotFound
	}
	return &rt, nil
}

func (s *MemoryStore) ValidateNotExpired(_ context.Context, rt *models.RefreshToken, now time.Time) error {
	if !rt.ExpiredAt(now) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(rt.Token)
	return common.ErrRefreshTokenExpired
}

func (s *MemoryStore) RevokeAll(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token, ok := s.byUser[userID]; ok {
		s.removeLocked(token)
	}
	return nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for token, rt := range s.byToken {
		if rt.ExpiredAt(now) {
			s.removeLocked(token)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) removeLocked(token string) {
	rt, ok := s.byToken[token]
	if !ok {
		return
	}
	delete(s.byToken, token)
	if s.byUser[rt.UserID] == token {
		delete(s.byUser, rt.UserID)
	}
}
