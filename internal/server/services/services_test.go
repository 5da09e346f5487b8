package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/authkeeper/internal/server/tokenstore"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var (
	t0         = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	testKey    = []byte(strings.Repeat("k", auth.MinKeySize))
	accessTTL  = 15 * time.Minute
	refreshTTL = 24 * time.Hour
)

// movableClock is a test clock that can be advanced.
type movableClock struct{ now atomic.Int64 }

func newMovableClock(t time.Time) *movableClock {
	c := &movableClock{}
	c.now.Store(t.UnixNano())
	return c
}

func (c *movableClock) Now() time.Time          { return time.Unix(0, c.now.Load()).UTC() }
func (c *movableClock) Advance(d time.Duration) { c.now.Add(int64(d)) }

type fixture struct {
	users    *users.MemoryRepository
	hasher   *cryptox.Hasher
	store    tokenstore.Store
	signer   *auth.Signer
	clock    *movableClock
	recorder *recordingRecorder
	sessions *SessionService
	accounts *AccountService
}

type recordingRecorder struct {
	mu      sync.Mutex
	signIn  []string
	refresh []string
}

func (r *recordingRecorder) SignIn(o string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signIn = append(r.signIn, o)
}

func (r *recordingRecorder) Refresh(o string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refresh = append(r.refresh, o)
}

func (r *recordingRecorder) signIns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.signIn...)
}

func (r *recordingRecorder) refreshes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.refresh...)
}

func newFixture(t *testing.T, store tokenstore.Store) *fixture {
	t.Helper()

	hasher, err := cryptox.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)
	signer, err := auth.NewSigner(testKey)
	require.NoError(t, err)

	f := &fixture{
		users:    users.NewMemoryRepository(),
		hasher:   hasher,
		signer:   signer,
		clock:    newMovableClock(t0),
		recorder: &recordingRecorder{},
	}
	if store == nil {
		store = tokenstore.NewMemoryStore(refreshTTL, tokenstore.WithClock(f.clock.Now))
	}
	f.store = store

	dir := NewUserDirectory(f.users)
	f.sessions = NewSessionService(
		NewCredentialVerifier(dir, hasher, 2),
		dir, signer, store, accessTTL,
		WithSessionClock(f.clock.Now),
		WithRecorder(f.recorder),
	)
	f.accounts = NewAccountService(f.users, hasher, store, nil, nil)
	return f
}

func (f *fixture) register(t *testing.T, username, email, password string, roles ...models.Role) *models.Identity {
	t.Helper()
	u, err := f.accounts.Register(context.Background(), NewIdentity{
		Username: username, Email: email, Password: password, Roles: roles,
	})
	require.NoError(t, err)
	return u
}

// failingUsers makes every finder fail like a broken database.
type failingUsers struct {
	users.Repository
}

var errDown = errors.New("connection refused")

func (failingUsers) FindByUsername(context.Context, string) (*models.Identity, error) {
	return nil, errDown
}

func (failingUsers) FindByEmail(context.Context, string) (*models.Identity, error) {
	return nil, errDown
}

func (failingUsers) FindByID(context.Context, string) (*models.Identity, error) {
	return nil, errDown
}

// scriptedStore fails Issue with the queued errors before delegating.
type scriptedStore struct {
	tokenstore.Store
	issueErrs []error
	issued    int
}

func (s *scriptedStore) Issue(ctx context.Context, userID string) (*models.RefreshToken, error) {
	s.issued++
	if len(s.issueErrs) > 0 {
		err := s.issueErrs[0]
		s.issueErrs = s.issueErrs[1:]
		return nil, err
	}
	return s.Store.Issue(ctx, userID)
}

func unavailableErr() error {
	return errors.Join(common.ErrStoreUnavailable, errDown)
}
