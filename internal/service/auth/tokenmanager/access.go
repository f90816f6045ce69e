package tokenmanager

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/authservice/internal/apperrors"
	"github.com/nkiryanov/authservice/internal/models"
)

// Minimal key length in bytes: not shorter than the MAC output
var minKeyLen = map[string]int{
	"HS256": 32,
	"HS384": 48,
	"HS512": 64,
}

type AccessConfig struct {
	Key    []byte
	Alg    string
	Issuer string
	TTL    time.Duration
}

// AccessCodec signs and verifies access tokens (JWT with HMAC signature)
type AccessCodec struct {
	key    []byte
	alg    jwt.SigningMethod
	issuer string
	ttl    time.Duration
}

func NewAccessCodec(cfg AccessConfig) (*AccessCodec, error) {
	minLen, ok := minKeyLen[cfg.Alg]
	if !ok {
		return nil, configError("signing method %q is not supported, use one of HS256, HS384, HS512", cfg.Alg)
	}

	switch {
	case len(cfg.Key) == 0:
		return nil, configError("secret key must not be empty")
	case len(cfg.Key) < minLen:
		return nil, configError("secret key is too short for %s: has %d bytes, at least %d required", cfg.Alg, len(cfg.Key), minLen)
	case cfg.Issuer == "":
		return nil, configError("issuer must not be empty")
	case cfg.TTL <= 0:
		return nil, configError("access token ttl must be positive, got %s", cfg.TTL)
	}

	// Copy key so nobody could change it after codec created
	key := make([]byte, len(cfg.Key))
	copy(key, cfg.Key)

	return &AccessCodec{
		key:    key,
		alg:    jwt.GetSigningMethod(cfg.Alg),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
	}, nil
}

func (c *AccessCodec) Issue(subject string, now time.Time) (models.IssuedToken, error) {
	expiresAt := now.Add(c.ttl)

	token := jwt.NewWithClaims(
		c.alg,
		jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	)

	access, err := token.SignedString(c.key)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return models.IssuedToken{Value: access, ExpiresAt: expiresAt}, nil
}

func (c *AccessCodec) Verify(access string, now time.Time) (models.AccessClaims, error) {
	return c.parse(access,
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
	)
}

// Same as Verify but expired token is accepted
func (c *AccessCodec) ParseIgnoringExpiry(access string) (models.AccessClaims, error) {
	claims, err := c.parse(access, jwt.WithoutClaimsValidation())
	if err != nil {
		return claims, err
	}

	// Claims validation skipped, so check the claims that still matter
	if claims.Issuer != c.issuer {
		return models.AccessClaims{}, fmt.Errorf("%w: unexpected issuer %q", apperrors.ErrInvalidToken, claims.Issuer)
	}
	if claims.Subject == "" {
		return models.AccessClaims{}, fmt.Errorf("%w: subject is empty", apperrors.ErrInvalidToken)
	}

	return claims, nil
}

func (c *AccessCodec) parse(access string, opts ...jwt.ParserOption) (models.AccessClaims, error) {
	claims := &jwt.RegisteredClaims{}
	opts = append(opts, jwt.WithValidMethods([]string{c.alg.Alg()}))

	_, err := jwt.ParseWithClaims(
		access,
		claims,
		func(t *jwt.Token) (any, error) {
			return c.key, nil
		},
		opts...,
	)
	if err != nil {
		return models.AccessClaims{}, fmt.Errorf("error while parsing or validating token: %w", classify(err))
	}

	// NumericDate is decoded in local time, claims are always UTC
	result := models.AccessClaims{
		ID:      claims.ID,
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}

	return result, nil
}

// Map jwt library errors to application errors
// The jwt error is kept in chain for logging
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", apperrors.ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", apperrors.ErrTokenSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", apperrors.ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidToken, err)
	}
}
