package tokenmanager

import (
	"fmt"
	"time"

	"github.com/nkiryanov/authservice/internal/apperrors"
	"github.com/nkiryanov/authservice/internal/models"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultSigningMethod   = "HS256"
	defaultRefreshTokenTTL = 24 * time.Hour
	defaultIssuer          = "authservice"
)

// Token manager with sensible default
type Config struct {
	// Secret key to sign access token
	// Required to be set and be long enough for the chosen algorithm
	SecretKey string

	// Value of 'iss' claim. Tokens with other issuer are rejected
	Issuer string

	// JWT MAC (Message Authentication Code) algorithm: HS256, HS384 or HS512
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenManager issues token pairs and verifies access tokens
// Has no mutable state, so it is safe to use concurrently
type TokenManager struct {
	access  *AccessCodec
	refresh *RefreshGenerator
}

func New(cfg Config) (*TokenManager, error) {
	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	access, err := NewAccessCodec(AccessConfig{
		Key:    []byte(cfg.SecretKey),
		Alg:    cfg.Alg,
		Issuer: cfg.Issuer,
		TTL:    cfg.AccessTTL,
	})
	if err != nil {
		return nil, err
	}

	refresh, err := NewRefreshGenerator(cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}

	return &TokenManager{access: access, refresh: refresh}, nil
}

// Issue new access token for subject and new random refresh token
func (m *TokenManager) IssuePair(subject string, now time.Time) (models.TokenPair, error) {
	var pair models.TokenPair

	access, err := m.access.Issue(subject, now)
	if err != nil {
		return pair, err
	}

	refresh, err := m.refresh.Generate(now)
	if err != nil {
		return pair, err
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

// Parse and validate access token: signature, issuer and expiration
func (m *TokenManager) VerifyAccess(access string, now time.Time) (models.AccessClaims, error) {
	return m.access.Verify(access, now)
}

// Parse access token and check its signature but accept expired one
// Must be used by refresh flow only
func (m *TokenManager) ParseAccessIgnoringExpiry(access string) (models.AccessClaims, error) {
	return m.access.ParseIgnoringExpiry(access)
}

func (m *TokenManager) HashRefresh(refresh string) string {
	return HashRefresh(refresh)
}

func (m *TokenManager) AccessTTL() time.Duration {
	return m.access.ttl
}

func (m *TokenManager) RefreshTTL() time.Duration {
	return m.refresh.ttl
}

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperrors.ErrConfiguration, fmt.Sprintf(format, args...))
}
