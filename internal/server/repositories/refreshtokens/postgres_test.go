package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	qInsert       = `(?s)^\s*INSERT\s+INTO\s+refresh_tokens\s*\(token,\s*user_id,\s*expires_at,\s*created_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4\)\s*$`
	qFind         = `(?s)^\s*SELECT\s+user_id,\s*expires_at,\s*created_at\s+FROM\s+refresh_tokens\s+WHERE\s+token\s*=\s*\$1\s*$`
	qDelete       = `(?s)^\s*DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+token\s*=\s*\$1\s*$`
	qDeleteByUser = `(?s)^\s*DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+user_id\s*=\s*\$1\s*$`
	qDeleteExp    = `(?s)^\s*DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+expires_at\s*<=\s*\$1\s*$`
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func sampleToken() *models.RefreshToken {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	return &models.RefreshToken{Token: "tok123", UserID: "u1", ExpiresAt: now.Add(time.Hour), CreatedAt: now}
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rt := sampleToken()
	mock.ExpectExec(qInsert).
		WithArgs("tok123", "u1", rt.ExpiresAt, rt.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), rt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_TokenCollision(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(qInsert).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "refresh_tokens_pkey"})

	err := repo.Create(context.Background(), sampleToken())
	assert.ErrorIs(t, err, common.ErrTokenCollision)
}

func TestCreate_OwnerConstraintIsNotACollision(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(qInsert).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "refresh_tokens_user_id_key"})

	err := repo.Create(context.Background(), sampleToken())
	assert.False(t, errors.Is(err, common.ErrTokenCollision))
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(qInsert).
		WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), sampleToken())
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestFind_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rt := sampleToken()
	mock.ExpectQuery(qFind).
		WithArgs("tok123").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at", "created_at"}).
			AddRow("u1", rt.ExpiresAt, rt.CreatedAt))

	got, err := repo.Find(context.Background(), "tok123")
	require.NoError(t, err)
	assert.Equal(t, rt, got)
}

func TestFind_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qFind).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Find(context.Background(), "missing")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestFind_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(qFind).
		WithArgs("tok123").
		WillReturnError(errors.New("db err"))

	_, err := repo.Find(context.Background(), "tok123")
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
}

func TestDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(qDelete).WithArgs("tok123").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, repo.Delete(context.Background(), "tok123"))

	mock.ExpectExec(qDelete).WithArgs("tok123").WillReturnError(errors.New("db err"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "tok123"), common.ErrStoreUnavailable)
}

func TestDeleteByUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(qDeleteByUser).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))
	n, err := repo.DeleteByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDeleteExpired(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectExec(qDeleteExp).WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	mock.ExpectExec(qDeleteExp).WithArgs(now).WillReturnResult(sqlmock.NewErrorResult(errors.New("no count")))
	_, err = repo.DeleteExpired(context.Background(), now)
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
}
