package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/google/uuid"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the user row and its roles atomically. When the repository
// is bound to a *sql.DB it opens its own transaction; bound to a *sql.Tx it
// joins the caller's.
func (r *PostgresRepository) Create(ctx context.Context, user *models.Identity) (*models.Identity, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	b, ok := r.db.(dbx.Beginner)
	if !ok {
		return r.insert(ctx, user)
	}

	var created *models.Identity
	err := dbx.WithTx(ctx, b, dbx.ReadCommitted, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		created, err = NewPostgresRepository(tx).insert(ctx, user)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) || errors.Is(err, common.ErrStoreUnavailable) {
			return nil, err
		}
		return nil, dbx.Unavailable(err)
	}
	return created, nil
}

func (r *PostgresRepository) insert(ctx context.Context, user *models.Identity) (*models.Identity, error) {
	query :=
		`INSERT INTO users (id, username, email, password_hash, avatar_key)
         VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.ID, nullString(user.Username), user.Email, user.PasswordHash, user.AvatarKey).Scan(&user.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, "") {
			return nil, fmt.Errorf("user %q: %w", user.Email, common.ErrorAlreadyExists)
		}
		return nil, dbx.Unavailable(err)
	}

	for _, role := range user.Roles {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO user_roles (user_id, role) VALUES ($1, $2)`, user.ID, string(role)); err != nil {
			return nil, dbx.Unavailable(err)
		}
	}

	return user, nil
}

func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (*models.Identity, error) {
	return r.findOne(ctx, "username", username)
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	return r.findOne(ctx, "email", email)
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.Identity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrorNotFound
	}
	return r.findOne(ctx, "id", id)
}

// findOne selects a single identity by column. column is never user input.
func (r *PostgresRepository) findOne(ctx context.Context, column, value string) (*models.Identity, error) {
	query := fmt.Sprintf(
		`SELECT id, username, email, password_hash, avatar_key, created_at FROM users
		 WHERE %s = $1
		 `, column)

	user := &models.Identity{}
	var username sql.NullString
	err := r.db.QueryRowContext(ctx, query, value).
		Scan(&user.ID, &username, &user.Email, &user.PasswordHash, &user.AvatarKey, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, dbx.Unavailable(err)
	}
	user.Username = username.String

	roles, err := r.roles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Roles = roles

	return user, nil
}

func (r *PostgresRepository) roles(ctx context.Context, userID string) ([]models.Role, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`, userID)
	if err != nil {
		return nil, dbx.Unavailable(err)
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, dbx.Unavailable(err)
		}
		roles = append(roles, models.Role(role))
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.Unavailable(err)
	}
	return roles, nil
}

func (r *PostgresRepository) LockByID(ctx context.Context, id string) error {
	query :=
		`SELECT id FROM users
		 WHERE id = $1
		 FOR UPDATE
		 `

	var locked string
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorNotFound
		}
		return dbx.Unavailable(err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return dbx.Unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbx.Unavailable(err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
