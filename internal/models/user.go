package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Username       string
	Email          string
	HashedPassword string

	// The only session slot of the user: new login or refresh overwrites it
	Refresh RefreshState
}

// Refresh token state stored on the user
// Zero value means there is no active session
type RefreshState struct {
	// SHA-256 hex digest of the refresh token, empty if there is no session
	TokenHash string

	// Zero time if there is no session
	ExpiresAt time.Time
}

// Active reports whether the state holds a refresh token which is not expired at 'now'
func (s RefreshState) Active(now time.Time) bool {
	return s.TokenHash != "" && s.ExpiresAt.After(now)
}
