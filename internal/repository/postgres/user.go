package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/authservice/internal/apperrors"
	"github.com/nkiryanov/authservice/internal/models"
	"github.com/nkiryanov/authservice/internal/repository"
)

type UserRepo struct {
	DB DBTX
}

const userColumns = `id, created_at, username, email, password_hash, refresh_token_hash, refresh_expires_at`

const createUser = `-- name: CreateUser
INSERT INTO users (id, username, email, password_hash)
VALUES ($1, $2, $3, $4)
RETURNING ` + userColumns

func (r *UserRepo) CreateUser(ctx context.Context, params repository.CreateUserParams) (models.User, error) {
	rows, _ := r.DB.Query(ctx, createUser, uuid.New(), params.Username, params.Email, params.HashedPassword)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return user, apperrors.ErrUserAlreadyExists
		}

		return user, dbError(err)
	}

	return user, nil
}

const getUserByUsername = `-- name: GetUserByUsername
SELECT ` + userColumns + `
FROM users
WHERE username = $1
`

func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByUsername, username)
	return collectUser(rows)
}

const setRefresh = `-- name: SetRefresh
UPDATE users
SET refresh_token_hash = $2, refresh_expires_at = $3
WHERE id = $1
RETURNING id
`

func (r *UserRepo) SetRefresh(ctx context.Context, userID uuid.UUID, state models.RefreshState) error {
	hash, expiresAt := refreshArgs(state)
	rows, _ := r.DB.Query(ctx, setRefresh, userID, hash, expiresAt)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[uuid.UUID])

	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.ErrUserNotFound
	default:
		return dbError(err)
	}
}

// Row is locked by the first UPDATE, the concurrent one re-evaluates WHERE after it commits
// and so never matches the replaced hash
const rotateRefresh = `-- name: RotateRefresh
UPDATE users
SET refresh_token_hash = $3, refresh_expires_at = $4
WHERE id = $1 AND refresh_token_hash = $2 AND refresh_expires_at > $5
RETURNING id
`

func (r *UserRepo) RotateRefresh(ctx context.Context, userID uuid.UUID, presentedHash string, now time.Time, next models.RefreshState) error {
	hash, expiresAt := refreshArgs(next)
	rows, _ := r.DB.Query(ctx, rotateRefresh, userID, presentedHash, hash, expiresAt, now)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[uuid.UUID])

	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.ErrInvalidRefreshToken
	default:
		return dbError(err)
	}
}

func collectUser(rows pgx.Rows) (models.User, error) {
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, dbError(err)
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	var refreshHash *string
	var refreshExpiresAt *time.Time

	err := row.Scan(&u.ID, &u.CreatedAt, &u.Username, &u.Email, &u.HashedPassword, &refreshHash, &refreshExpiresAt)
	if err != nil {
		return u, err
	}

	if refreshHash != nil && refreshExpiresAt != nil {
		u.Refresh = models.RefreshState{TokenHash: *refreshHash, ExpiresAt: *refreshExpiresAt}
	}

	return u, nil
}

// Zero state stored as NULLs
func refreshArgs(state models.RefreshState) (hash any, expiresAt any) {
	if state.TokenHash == "" {
		return nil, nil
	}
	return state.TokenHash, state.ExpiresAt
}
