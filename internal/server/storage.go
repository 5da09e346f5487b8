package server

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/dmitrijs2005/authkeeper/internal/server/tokenstore"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// storage bundles the identity repository and the refresh token backend
// selected by config.Storage.
type storage struct {
	users  users.Repository
	tokens tokenstore.Store
	ping   func(ctx context.Context) error
	close  []func() error
}

func (s *storage) Close() error {
	var first error
	for i := len(s.close) - 1; i >= 0; i-- {
		if err := s.close[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openPostgres is replaced in tests.
var openPostgres = repomanager.OpenPostgres

func openStorage(ctx context.Context, cfg *config.Config, clock timex.Clock) (*storage, error) {
	opts := []tokenstore.Option{tokenstore.WithClock(clock)}

	if cfg.Storage == config.StorageMemory {
		return &storage{
			users:  users.NewMemoryRepository(),
			tokens: tokenstore.NewMemoryStore(cfg.RefreshTokenTTL, opts...),
		}, nil
	}

	db, err := openPostgres(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	st := &storage{close: []func() error{db.Close}}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	st.users = rm.Users(db)
	st.ping = db.PingContext

	switch cfg.Storage {
	case config.StorageRedis:
		client, err := tokenstore.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		st.close = append(st.close, client.Close)
		st.tokens = tokenstore.NewRedisStore(client, cfg.RefreshTokenTTL, opts...)
		st.ping = func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				return err
			}
			return client.Ping(ctx).Err()
		}
	default:
		st.tokens = tokenstore.NewSQLStore(db, rm, cfg.RefreshTokenTTL, opts...)
	}
	return st, nil
}

// OpenAccounts gives command line tools access to the account service
// without starting any listeners. The returned func releases storage.
func OpenAccounts(ctx context.Context, cfg *config.Config, log logging.Logger) (*services.AccountService, func() error, error) {
	hasher, err := cryptox.NewHasher(cfg.BcryptCost)
	if err != nil {
		return nil, nil, err
	}
	st, err := openStorage(ctx, cfg, timex.UTCNow)
	if err != nil {
		return nil, nil, err
	}
	return services.NewAccountService(st.users, hasher, st.tokens, nil, log), st.Close, nil
}
