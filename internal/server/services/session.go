package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/tokenstore"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxIssueAttempts bounds retries on refresh token collisions.
const maxIssueAttempts = 3

var tracer = otel.Tracer("github.com/dmitrijs2005/authkeeper/internal/server/services")

// SessionBundle is what a successful sign-in or refresh hands back.
// Identity is only set on sign-in.
type SessionBundle struct {
	AccessToken  string
	RefreshToken string
	Identity     *models.IdentitySummary
}

// Recorder counts session outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	SignIn(outcome string)
	Refresh(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) SignIn(string)  {}
func (nopRecorder) Refresh(string) {}

// SessionService is the sign-in / refresh / sign-out surface. Each user has
// at most one live refresh token; signing in again replaces it.
type SessionService struct {
	credentials *CredentialVerifier
	directory   IdentityDirectory
	signer      *auth.Signer
	store       tokenstore.Store
	accessTTL   time.Duration
	clock       timex.Clock
	recorder    Recorder
	log         logging.Logger
}

// SessionOption customizes a SessionService.
type SessionOption func(*SessionService)

func WithSessionClock(c timex.Clock) SessionOption {
	return func(s *SessionService) { s.clock = c }
}

func WithRecorder(r Recorder) SessionOption {
	return func(s *SessionService) { s.recorder = r }
}

func WithLogger(l logging.Logger) SessionOption {
	return func(s *SessionService) { s.log = l }
}

func NewSessionService(
	credentials *CredentialVerifier,
	directory IdentityDirectory,
	signer *auth.Signer,
	store tokenstore.Store,
	accessTTL time.Duration,
	opts ...SessionOption,
) *SessionService {
	s := &SessionService{
		credentials: credentials,
		directory:   directory,
		signer:      signer,
		store:       store,
		accessTTL:   accessTTL,
		clock:       timex.UTCNow,
		recorder:    nopRecorder{},
		log:         logging.Nop{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SignIn verifies credentials, signs an access token for the identity and
// replaces the user's refresh token. If the refresh token cannot be stored
// the whole sign-in fails and the access token is discarded.
func (s *SessionService) SignIn(ctx context.Context, identifier, secret string) (*SessionBundle, error) {
	ctx, span := tracer.Start(ctx, "SessionService.SignIn")
	defer span.End()

	bundle, err := s.signIn(ctx, identifier, secret)
	s.recorder.SignIn(outcome(err))
	endSpan(span, err)
	return bundle, err
}

func (s *SessionService) signIn(ctx context.Context, identifier, secret string) (*SessionBundle, error) {
	user, err := s.credentials.Verify(ctx, identifier, secret)
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("user.id", user.ID))

	access, err := s.signer.Issue(user.ID, s.clock(), s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}

	rt, err := s.issueRefresh(ctx, user.ID)
	if errors.Is(err, common.ErrorNotFound) {
		// account deleted between verification and issue
		return nil, common.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	summary := user.Summary()
	s.log.Info(ctx, "signin succeeded", "user_id", user.ID)
	return &SessionBundle{AccessToken: access, RefreshToken: rt.Token, Identity: &summary}, nil
}

// issueRefresh retries only on token collisions. Store outages are
// returned as is.
func (s *SessionService) issueRefresh(ctx context.Context, userID string) (*models.RefreshToken, error) {
	var err error
	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		var rt *models.RefreshToken
		rt, err = s.store.Issue(ctx, userID)
		if err == nil {
			return rt, nil
		}
		if !errors.Is(err, common.ErrTokenCollision) {
			return nil, err
		}
		s.log.Warn(ctx, "refresh token collision", "user_id", userID, "attempt", attempt)
	}
	return nil, err
}

// Refresh exchanges a live refresh token for a new access token. The
// refresh token itself is returned unchanged; its lifetime is fixed at
// sign-in.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*SessionBundle, error) {
	ctx, span := tracer.Start(ctx, "SessionService.Refresh")
	defer span.End()

	bundle, err := s.refresh(ctx, refreshToken)
	s.recorder.Refresh(outcome(err))
	endSpan(span, err)
	return bundle, err
}

func (s *SessionService) refresh(ctx context.Context, refreshToken string) (*SessionBundle, error) {
	rt, err := s.store.Lookup(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	if err := s.store.ValidateNotExpired(ctx, rt, now); err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("user.id", rt.UserID))

	access, err := s.signer.Issue(rt.UserID, now, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}
	return &SessionBundle{AccessToken: access, RefreshToken: rt.Token}, nil
}

// SignOut revokes the user's refresh token. Access tokens already issued
// stay valid until they expire.
func (s *SessionService) SignOut(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "SessionService.SignOut",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	err := s.store.RevokeAll(ctx, userID)
	endSpan(span, err)
	return err
}

// Authenticate resolves a bearer access token to its identity. Token
// failures come from auth.Signer.Verify; a subject that no longer exists
// yields common.ErrInvalidCredentials.
func (s *SessionService) Authenticate(ctx context.Context, accessToken string) (*models.Identity, error) {
	subject, err := s.signer.Verify(accessToken, s.clock())
	if err != nil {
		return nil, err
	}

	user, err := s.directory.FindUserByID(ctx, subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidCredentials
		}
		return nil, err
	}
	return user, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, common.ErrInvalidCredentials):
		return metrics.OutcomeInvalidCredentials
	case errors.Is(err, common.ErrRefreshTokenNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return metrics.OutcomeExpired
	case errors.Is(err, common.ErrStoreUnavailable):
		return metrics.OutcomeUnavailable
	default:
		return metrics.OutcomeError
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome(err))
	}
}
