// Package server wires configuration, storage, services and transports
// into a runnable authkeeper process.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/blobstore"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/dmitrijs2005/authkeeper/internal/server/tokenstore"
	"github.com/dmitrijs2005/authkeeper/internal/telemetry"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/authkeeper/internal/server/grpc"
)

const serviceName = "authkeeper"

type App struct {
	config   *config.Config
	logger   logging.Logger
	storage  *storage
	sessions *services.SessionService
	accounts *services.AccountService
	metrics  *metrics.Metrics
	tracing  func(context.Context) error
	clock    timex.Clock
}

// NewApp opens storage, runs migrations and builds the services. The
// bootstrap admin is created when an admin password is configured.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, cfg.LogLevel)
	return newApp(ctx, cfg, logger)
}

func newApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (_ *App, err error) {
	app := &App{config: cfg, logger: logger, clock: timex.UTCNow, metrics: metrics.New()}
	defer func() {
		if err != nil {
			app.cleanup(context.Background())
		}
	}()

	if cfg.OTLPEndpoint != "" {
		app.tracing, err = telemetry.Setup(ctx, serviceName, cfg.OTLPEndpoint)
		if err != nil {
			return nil, fmt.Errorf("tracing: %w", err)
		}
	}

	key, err := cfg.SigningKey()
	if err != nil {
		return nil, err
	}
	signer, err := auth.NewSigner(key)
	if err != nil {
		return nil, err
	}
	hasher, err := cryptox.NewHasher(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	app.storage, err = openStorage(ctx, cfg, app.clock)
	if err != nil {
		return nil, err
	}

	var avatars services.AvatarStore
	if cfg.S3Bucket != "" {
		avatars, err = blobstore.NewS3Store(ctx, blobstore.Settings{
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3RootUser,
			SecretKey:    cfg.S3RootPassword,
			Bucket:       cfg.S3Bucket,
			BaseEndpoint: cfg.S3BaseEndpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("object storage: %w", err)
		}
	}

	dir := services.NewUserDirectory(app.storage.users)
	app.sessions = services.NewSessionService(
		services.NewCredentialVerifier(dir, hasher, cfg.HashConcurrency),
		dir, signer, app.storage.tokens, cfg.AccessTokenTTL,
		services.WithSessionClock(app.clock),
		services.WithRecorder(app.metrics),
		services.WithLogger(logger.With("module", "sessions")),
	)
	app.accounts = services.NewAccountService(app.storage.users, hasher, app.storage.tokens, avatars,
		logger.With("module", "accounts"))

	if cfg.AdminPassword != "" {
		created, err := app.accounts.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword)
		if err != nil {
			return nil, fmt.Errorf("admin bootstrap: %w", err)
		}
		if created {
			logger.Info(ctx, "bootstrap admin created", "email", cfg.AdminEmail)
		}
	}

	return app, nil
}

func (app *App) httpServer() *http.Server {
	h := httpapi.NewHandler(httpapi.Deps{
		Sessions: app.sessions,
		Accounts: app.accounts,
		Logger:   app.logger.With("module", "http"),
		Observer: app.metrics,
		Metrics:  app.metrics.Handler(),
		Health:   app.storage.ping,
	})
	return &http.Server{Addr: app.config.HTTPAddr, Handler: h.Router()}
}

// Run serves HTTP and gRPC until ctx is cancelled or a termination signal
// arrives, then shuts both down and releases storage.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting app...", "storage", app.config.Storage)

	g, ctx := errgroup.WithContext(ctx)

	srv := app.httpServer()
	g.Go(func() error {
		app.logger.Info(ctx, "Starting HTTP server", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.sessions).Run(ctx)
	})

	if app.config.SweepInterval > 0 {
		sweeper := tokenstore.NewSweeper(app.storage.tokens, app.config.SweepInterval, app.clock,
			app.logger.With("module", "sweeper"))
		g.Go(func() error {
			sweeper.Run(ctx)
			return nil
		})
	}

	err := g.Wait()
	app.cleanup(context.Background())
	app.logger.Info(context.Background(), "App stopped")
	return err
}

func (app *App) cleanup(ctx context.Context) {
	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.Error(ctx, "storage close", "error", err)
		}
	}
	if app.tracing != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, app.config.ShutdownTimeout)
		defer cancel()
		if err := app.tracing(shutdownCtx); err != nil {
			app.logger.Error(ctx, "tracing shutdown", "error", err)
		}
	}
}
