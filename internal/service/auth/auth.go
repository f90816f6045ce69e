package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/nkiryanov/authservice/internal/apperrors"
	"github.com/nkiryanov/authservice/internal/models"
	"github.com/nkiryanov/authservice/internal/repository"
)

// Issues and checks tokens, implemented by tokenmanager.TokenManager
type TokenManager interface {
	IssuePair(subject string, now time.Time) (models.TokenPair, error)
	VerifyAccess(access string, now time.Time) (models.AccessClaims, error)
	ParseAccessIgnoringExpiry(access string) (models.AccessClaims, error)
	HashRefresh(refresh string) string
}

// Owns user passwords, implemented by user.UserService
type Credentials interface {
	Create(ctx context.Context, username string, email string, password string) (models.User, error)
	Verify(ctx context.Context, username string, password string) (models.User, error)
}

type Config struct {
	// Clock used for every token operation
	// If not set than current UTC time truncated to seconds is used: JWT keeps seconds only
	Now func() time.Time
}

// AuthService drives user session: login, refresh with rotation and logout
// Every user has at most one active refresh token
type AuthService struct {
	now         func() time.Time
	tokens      TokenManager
	credentials Credentials
	users       repository.UserRepo
}

func NewService(cfg Config, tokens TokenManager, credentials Credentials, users repository.UserRepo) (*AuthService, error) {
	if tokens == nil || credentials == nil || users == nil {
		return nil, fmt.Errorf("%w: auth service dependencies must not be nil", apperrors.ErrConfiguration)
	}

	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC().Truncate(time.Second) }
	}

	return &AuthService{
		now:         now,
		tokens:      tokens,
		credentials: credentials,
		users:       users,
	}, nil
}

// Create new user without session
func (s *AuthService) Register(ctx context.Context, username string, email string, password string) (models.User, error) {
	return s.credentials.Create(ctx, username, email, password)
}

// Check credentials and start new session
// Previous refresh token of the user (if any) stops working
func (s *AuthService) Login(ctx context.Context, username string, password string) (models.TokenPair, error) {
	user, err := s.credentials.Verify(ctx, username, password)
	if err != nil {
		return models.TokenPair{}, err
	}

	pair, err := s.tokens.IssuePair(user.Username, s.now())
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	err = s.users.SetRefresh(ctx, user.ID, s.refreshState(pair))
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("session could not be saved. %w", err)
	}

	return pair, nil
}

// Exchange access token (may be expired) and current refresh token for the new pair
// Presented refresh token stops working
func (s *AuthService) Refresh(ctx context.Context, access string, refresh string) (models.TokenPair, error) {
	now := s.now()

	claims, err := s.tokens.ParseAccessIgnoringExpiry(access)
	if err != nil {
		return models.TokenPair{}, err
	}

	user, err := s.users.GetUserByUsername(ctx, claims.Subject)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return models.TokenPair{}, fmt.Errorf("%w: subject is unknown", apperrors.ErrInvalidToken)
	case err != nil:
		return models.TokenPair{}, err
	}

	// Mismatch and expiration are reported with the same error
	presented := s.tokens.HashRefresh(refresh)
	if !user.Refresh.Active(now) || subtle.ConstantTimeCompare([]byte(presented), []byte(user.Refresh.TokenHash)) != 1 {
		return models.TokenPair{}, apperrors.ErrInvalidRefreshToken
	}

	pair, err := s.tokens.IssuePair(user.Username, now)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	// The store re-checks hash and expiration, so a concurrent refresh with the same token loses here
	err = s.users.RotateRefresh(ctx, user.ID, presented, now, s.refreshState(pair))
	if err != nil {
		return models.TokenPair{}, err
	}

	return pair, nil
}

// Clear user session. Calling it for user without session is ok
func (s *AuthService) Logout(ctx context.Context, username string) error {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return err
	}

	return s.users.SetRefresh(ctx, user.ID, models.RefreshState{})
}

// Verify access token presented to the protected endpoint
func (s *AuthService) Authenticate(access string) (models.AccessClaims, error) {
	return s.tokens.VerifyAccess(access, s.now())
}

func (s *AuthService) refreshState(pair models.TokenPair) models.RefreshState {
	return models.RefreshState{
		TokenHash: s.tokens.HashRefresh(pair.Refresh.Value),
		ExpiresAt: pair.Refresh.ExpiresAt,
	}
}
