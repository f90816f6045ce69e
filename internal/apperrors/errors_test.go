package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"no error", nil, "ok"},
		{"invalid credentials", ErrInvalidCredentials, "invalid_credentials"},
		{"duplicate", fmt.Errorf("can't create user. Err: %w", ErrUserAlreadyExists), "duplicate_user"},
		{"weak password", ErrWeakCredential, "weak_credential"},
		{"invalid input", ErrInvalidInput, "invalid_input"},
		{"expired", ErrTokenExpired, "expired_token"},
		{"malformed is invalid token", ErrTokenMalformed, "invalid_token"},
		{"bad signature is invalid token", ErrTokenSignatureInvalid, "invalid_token"},
		{"invalid refresh", ErrInvalidRefreshToken, "invalid_refresh_token"},
		{"not found", ErrUserNotFound, "not_found"},
		{"configuration", ErrConfiguration, "configuration_error"},
		{"storage", fmt.Errorf("%w: connection refused", ErrStorage), "storage_error"},
		{"unknown", errors.New("boom"), "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.code, Code(tt.err))
		})
	}
}

func TestTokenErrorsAreInvalidToken(t *testing.T) {
	require.ErrorIs(t, ErrTokenMalformed, ErrInvalidToken)
	require.ErrorIs(t, ErrTokenSignatureInvalid, ErrInvalidToken)
	require.NotErrorIs(t, ErrTokenExpired, ErrInvalidToken, "expired token is its own category")
}
