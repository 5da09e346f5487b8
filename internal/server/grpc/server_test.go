package grpc

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/dmitrijs2005/authkeeper/internal/server/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type harness struct {
	client *AuthServiceClient
	health healthpb.HealthClient
	user   *models.Identity
}

func newSessions(t *testing.T) (*services.SessionService, *models.Identity) {
	t.Helper()

	hasher, err := cryptox.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)
	signer, err := auth.NewSigner([]byte(strings.Repeat("g", auth.MinKeySize)))
	require.NoError(t, err)

	repo := users.NewMemoryRepository()
	store := tokenstore.NewMemoryStore(time.Hour)
	u, err := services.NewAccountService(repo, hasher, store, nil, nil).Register(context.Background(), services.NewIdentity{
		Username: "alice", Email: "alice@example.com", Password: "pw",
	})
	require.NoError(t, err)

	dir := services.NewUserDirectory(repo)
	return services.NewSessionService(services.NewCredentialVerifier(dir, hasher, 1), dir, signer, store, 15*time.Minute), u
}

func start(t *testing.T, sessions Sessions) *harness {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewGRPCServer("bufconn", logging.Nop{}, sessions).Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("server did not stop after cancel")
		}
	})

	return &harness{client: NewAuthServiceClient(conn), health: healthpb.NewHealthClient(conn)}
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func withBearer(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, common.AuthorizationHeaderName, "Bearer "+token)
}

func TestAuthService_SignInRefreshMe(t *testing.T) {
	sessions, u := newSessions(t)
	h := start(t, sessions)
	ctx := context.Background()

	out, err := h.client.SignIn(ctx, mustStruct(t, map[string]any{"identifier": "alice", "password": "pw"}))
	require.NoError(t, err)
	f := out.AsMap()
	assert.Equal(t, u.ID, f["id"])
	assert.Equal(t, "alice", f["identifier"])
	assert.Equal(t, []any{"ROLE_USER"}, f["roles"])
	access := f["accessToken"].(string)
	refresh := f["refreshToken"].(string)

	out, err = h.client.Refresh(ctx, mustStruct(t, map[string]any{"refreshToken": refresh}))
	require.NoError(t, err)
	assert.Equal(t, refresh, out.AsMap()["refreshToken"])

	out, err = h.client.Me(withBearer(ctx, access), nil)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", out.AsMap()["email"])
}

func TestAuthService_StatusCodes(t *testing.T) {
	sessions, _ := newSessions(t)
	h := start(t, sessions)
	ctx := context.Background()

	_, err := h.client.SignIn(ctx, mustStruct(t, map[string]any{"identifier": "alice"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.client.SignIn(ctx, mustStruct(t, map[string]any{"identifier": "alice", "password": "bad"}))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = h.client.Refresh(ctx, mustStruct(t, map[string]any{"refreshToken": "nope"}))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = h.client.Me(ctx, nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, "missing token", status.Convert(err).Message())

	_, err = h.client.Me(withBearer(ctx, "not-a-jwt"), nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

type brokenSessions struct{ Sessions }

func (brokenSessions) SignIn(context.Context, string, string) (*services.SessionBundle, error) {
	return nil, errors.Join(common.ErrStoreUnavailable, errors.New("refused"))
}

func (brokenSessions) Refresh(context.Context, string) (*services.SessionBundle, error) {
	return nil, errors.New("boom")
}

func TestAuthService_BackendFailures(t *testing.T) {
	h := start(t, brokenSessions{})
	ctx := context.Background()

	_, err := h.client.SignIn(ctx, mustStruct(t, map[string]any{"identifier": "a", "password": "b"}))
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.NotContains(t, status.Convert(err).Message(), "refused")

	_, err = h.client.Refresh(ctx, mustStruct(t, map[string]any{"refreshToken": "x"}))
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestHealthService(t *testing.T) {
	sessions, _ := newSessions(t)
	h := start(t, sessions)

	resp, err := h.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	srv := NewGRPCServer("127.0.0.1:99999", logging.Nop{}, brokenSessions{})
	assert.Error(t, srv.Run(context.Background()))
}

func TestBearerFromMetadata(t *testing.T) {
	md := func(v string) context.Context {
		return metadata.NewIncomingContext(context.Background(), metadata.Pairs(common.AuthorizationHeaderName, v))
	}
	assert.Equal(t, "abc", bearerFromMetadata(md("Bearer abc")))
	assert.Equal(t, "", bearerFromMetadata(md("Basic abc")))
	assert.Equal(t, "", bearerFromMetadata(md("abc")))
	assert.Equal(t, "", bearerFromMetadata(context.Background()))
}
