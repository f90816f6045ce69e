package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	// Returned for unknown username and wrong password alike
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrWeakCredential     = errors.New("password does not satisfy password policy")
	ErrInvalidInput       = errors.New("invalid input")

	ErrInvalidToken          = errors.New("invalid token")
	ErrTokenMalformed        = fmt.Errorf("%w: token is malformed", ErrInvalidToken)
	ErrTokenSignatureInvalid = fmt.Errorf("%w: token signature is invalid", ErrInvalidToken)
	ErrTokenExpired          = errors.New("token is expired")

	// Value mismatch and expiration are deliberately the same error
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	ErrConfiguration = errors.New("configuration error")
	ErrStorage       = errors.New("storage error")
)

// Code returns short stable name of the error category
// Used as metrics label and log attribute, so must never contain error details
func Code(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrUserAlreadyExists):
		return "duplicate_user"
	case errors.Is(err, ErrWeakCredential):
		return "weak_credential"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrTokenExpired):
		return "expired_token"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrInvalidRefreshToken):
		return "invalid_refresh_token"
	case errors.Is(err, ErrUserNotFound):
		return "not_found"
	case errors.Is(err, ErrConfiguration):
		return "configuration_error"
	case errors.Is(err, ErrStorage):
		return "storage_error"
	default:
		return "internal_error"
	}
}
