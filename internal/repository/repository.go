package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nkiryanov/authservice/internal/models"
)

type CreateUserParams struct {
	Username       string
	Email          string
	HashedPassword string
}

// User repository interface
// Every error not listed below has to wrap apperrors.ErrStorage
type UserRepo interface {
	// Create user without session
	// If user with username or email exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)

	// Get user by username
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByUsername(ctx context.Context, username string) (models.User, error)

	// Overwrite user refresh state unconditionally. Zero state clears the session
	// If user not found must return apperrors.ErrUserNotFound
	SetRefresh(ctx context.Context, userID uuid.UUID, state models.RefreshState) error

	// Replace refresh state with 'next' only if the stored token hash equals 'presentedHash'
	// and stored expiration is strictly after 'now'. Check and write must be atomic:
	// of two concurrent calls with the same 'presentedHash' only one may succeed
	// Otherwise must return apperrors.ErrInvalidRefreshToken
	RotateRefresh(ctx context.Context, userID uuid.UUID, presentedHash string, now time.Time, next models.RefreshState) error
}

type Storage interface {
	User() UserRepo

	// Check storage is reachable
	Ping(ctx context.Context) error
}
