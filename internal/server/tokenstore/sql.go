package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// SQLStore keeps tokens in the refresh_tokens table. Every mutation runs in
// its own transaction that first locks the owner's users row, so requests
// for one user are serialized by the database.
type SQLStore struct {
	db    *sql.DB
	repos repomanager.RepositoryManager
	ttl   time.Duration
	settings
}

func NewSQLStore(db *sql.DB, repos repomanager.RepositoryManager, ttl time.Duration, opts ...Option) *SQLStore {
	return &SQLStore{db: db, repos: repos, ttl: ttl, settings: newSettings(opts)}
}

func (s *SQLStore) Issue(ctx context.Context, userID string) (*models.RefreshToken, error) {
	var issued *models.RefreshToken

	err := dbx.WithTx(ctx, s.db, dbx.ReadCommitted, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Users(tx).LockByID(ctx, userID); err != nil {
			return err
		}

		tokens := s.repos.RefreshTokens(tx)
		if _, err := tokens.DeleteByUser(ctx, userID); err != nil {
			return err
		}

		rt, err := s.mint(userID, s.ttl)
		if err != nil {
			return err
		}
		if err := tokens.Create(ctx, rt); err != nil {
			return err
		}

		issued = rt
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}
	return issued, nil
}

func (s *SQLStore) Lookup(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt, err := s.repos.RefreshTokens(s.db).Find(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrRefreshTokenNotFound
		}
		return nil, storeError(err)
	}
	return rt, nil
}

func (s *SQLStore) ValidateNotExpired(ctx context.Context, rt *models.RefreshToken, now time.Time) error {
	if !rt.ExpiredAt(now) {
		return nil
	}

	err := dbx.WithTx(ctx, s.db, dbx.ReadCommitted, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Users(tx).LockByID(ctx, rt.UserID); err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		return s.repos.RefreshTokens(tx).Delete(ctx, rt.Token)
	})
	if err != nil {
		return storeError(err)
	}
	return common.ErrRefreshTokenExpired
}

func (s *SQLStore) RevokeAll(ctx context.Context, userID string) error {
	err := dbx.WithTx(ctx, s.db, dbx.ReadCommitted, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Users(tx).LockByID(ctx, userID); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil
			}
			return err
		}
		_, err := s.repos.RefreshTokens(tx).DeleteByUser(ctx, userID)
		return err
	})
	if err != nil {
		return storeError(err)
	}
	return nil
}

func (s *SQLStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.repos.RefreshTokens(s.db).DeleteExpired(ctx, now)
	if err != nil {
		return 0, storeError(err)
	}
	return n, nil
}

// storeError passes domain sentinels through and marks everything else,
// such as begin or commit failures, as a store outage.
func storeError(err error) error {
	switch {
	case errors.Is(err, common.ErrTokenCollision),
		errors.Is(err, common.ErrorNotFound),
		errors.Is(err, common.ErrStoreUnavailable):
		return err
	default:
		return dbx.Unavailable(err)
	}
}
