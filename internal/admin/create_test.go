package admin

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/dmitrijs2005/authkeeper/internal/server/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func stubPasswords(t *testing.T, answers ...string) {
	t.Helper()
	old := readPassword
	t.Cleanup(func() { readPassword = old })
	readPassword = func(int) ([]byte, error) {
		if len(answers) == 0 {
			return nil, errors.New("no more input")
		}
		a := answers[0]
		answers = answers[1:]
		return []byte(a), nil
	}
}

func newAccounts(t *testing.T) (*services.AccountService, *users.MemoryRepository) {
	t.Helper()
	hasher, err := cryptox.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)
	repo := users.NewMemoryRepository()
	return services.NewAccountService(repo, hasher, tokenstore.NewMemoryStore(0), nil, nil), repo
}

func TestParseOptions(t *testing.T) {
	o, err := ParseOptions([]string{"-d", "postgres://x", "-email", "a@b.c", "-username=alice", "-admin"})
	require.NoError(t, err)
	assert.Equal(t, Options{Username: "alice", Email: "a@b.c", Admin: true}, o)
}

func TestCreateIdentity_Prompts(t *testing.T) {
	stubPasswords(t, "pw", "pw")
	accounts, repo := newAccounts(t)
	var out bytes.Buffer

	u, err := CreateIdentity(context.Background(), accounts, Options{},
		bufio.NewReader(strings.NewReader("carol@example.com\ncarol\n")), &out)
	require.NoError(t, err)
	assert.Equal(t, "carol", u.Username)
	assert.Equal(t, []models.Role{models.RoleUser}, u.Roles)
	assert.Contains(t, out.String(), "Repeat password")

	stored, err := repo.FindByEmail(context.Background(), "carol@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "pw", stored.PasswordHash)
}

func TestCreateIdentity_Admin(t *testing.T) {
	stubPasswords(t, "pw", "pw")
	accounts, _ := newAccounts(t)

	u, err := CreateIdentity(context.Background(), accounts,
		Options{Username: "root", Email: "root@example.com", Admin: true},
		bufio.NewReader(strings.NewReader("")), &bytes.Buffer{})
	require.NoError(t, err)
	assert.True(t, u.HasRole(models.RoleAdmin))
}

func TestCreateIdentity_PasswordMismatch(t *testing.T) {
	stubPasswords(t, "pw", "other")
	accounts, _ := newAccounts(t)

	_, err := CreateIdentity(context.Background(), accounts,
		Options{Email: "x@example.com", Username: "x"},
		bufio.NewReader(strings.NewReader("")), &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrPasswordMismatch)
}

func TestCreateIdentity_Duplicate(t *testing.T) {
	stubPasswords(t, "pw", "pw", "pw", "pw")
	accounts, _ := newAccounts(t)
	o := Options{Email: "dup@example.com", Username: "dup"}
	in := bufio.NewReader(strings.NewReader(""))

	_, err := CreateIdentity(context.Background(), accounts, o, in, &bytes.Buffer{})
	require.NoError(t, err)
	_, err = CreateIdentity(context.Background(), accounts, o, in, &bytes.Buffer{})
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestGetSimpleText_EOF(t *testing.T) {
	got, err := GetSimpleText(bufio.NewReader(strings.NewReader("last")), "Name", &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "last", got)
}
