package render

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authservice/internal/apperrors"
)

// Run render function against recorder and return status and body
func record(t *testing.T, fn func(w http.ResponseWriter)) (int, string) {
	t.Helper()

	rec := httptest.NewRecorder()
	fn(rec)

	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	return rec.Code, rec.Body.String()
}

func TestRender_JSON(t *testing.T) {
	t.Run("ok status", func(t *testing.T) {
		code, body := record(t, func(w http.ResponseWriter) {
			JSON(w, map[string]any{"token": "t", "expiresIn": 900})
		})

		require.Equal(t, http.StatusOK, code)
		require.JSONEq(t, `{"token": "t", "expiresIn": 900}`, body)
	})

	t.Run("custom status", func(t *testing.T) {
		code, body := record(t, func(w http.ResponseWriter) {
			JSONWithStatus(w, map[string]string{"status": "Unhealthy"}, http.StatusInternalServerError)
		})

		require.Equal(t, http.StatusInternalServerError, code)
		require.JSONEq(t, `{"status": "Unhealthy"}`, body)
	})

	t.Run("not encodable", func(t *testing.T) {
		rec := httptest.NewRecorder()

		JSON(rec, map[string]any{"ch": make(chan int)})

		require.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestRender_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     int
		message  string
		expected bool
	}{
		{"duplicate user", apperrors.ErrUserAlreadyExists, http.StatusConflict, "User already exists", true},
		{"bad credentials", apperrors.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid username or password", true},
		{"expired token", apperrors.ErrTokenExpired, http.StatusUnauthorized, "Token expired", true},
		{"malformed token", fmt.Errorf("parse: %w", apperrors.ErrTokenMalformed), http.StatusUnauthorized, "Invalid token", true},
		{"bad refresh token", apperrors.ErrInvalidRefreshToken, http.StatusUnauthorized, "Invalid refresh token", true},
		{"unknown user", apperrors.ErrUserNotFound, http.StatusNotFound, "User not found", true},
		{"weak password", fmt.Errorf("%w: no digit", apperrors.ErrWeakCredential), http.StatusBadRequest, "password does not satisfy password policy: no digit", true},
		{"storage down", fmt.Errorf("%w: connection refused", apperrors.ErrStorage), http.StatusInternalServerError, "Internal server error", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var known bool
			code, body := record(t, func(w http.ResponseWriter) {
				known = Error(w, tt.err)
			})

			require.Equal(t, tt.code, code)
			require.Equal(t, tt.expected, known)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal([]byte(body), &resp))
			require.Equal(t, ServiceErrorType, resp.Error)
			require.Equal(t, tt.message, resp.Message)
			require.NotContains(t, body, "connection refused", "internal details never reach client")
		})
	}
}

func TestRender_BindAndValidate(t *testing.T) {
	type login struct {
		Username string `json:"username" validate:"required,min=2,max=50"`
		Email    string `json:"email" validate:"omitempty,email"`
		Password string `json:"password" validate:"required"`
	}

	tests := []struct {
		name     string
		body     string
		code     int
		expected string
	}{
		{
			name:     "valid request",
			body:     `{"username": "alice", "password": "Secret123!"}`,
			code:     http.StatusOK,
			expected: `{"username": "alice"}`,
		},
		{
			name: "empty body",
			body: ``,
			code: http.StatusBadRequest,
			expected: `{
				"error": "decoding_failed",
				"message": "Request body is empty"
			}`,
		},
		{
			name: "malformed json",
			body: `invalid-json`,
			code: http.StatusBadRequest,
			expected: `{
				"error": "decoding_failed",
				"message": "Malformed JSON at position 1"
			}`,
		},
		{
			name: "wrong type",
			body: `{"username": 42, "password": "Secret123!"}`,
			code: http.StatusBadRequest,
			expected: `{
				"error": "decoding_failed",
				"message": "Invalid data type for field 'username'"
			}`,
		},
		{
			name: "body too large",
			body: `{"username": "` + strings.Repeat("a", maxBodyBytes) + `"}`,
			code: http.StatusRequestEntityTooLarge,
			expected: `{
				"error": "decoding_failed",
				"message": "Request body is too large (maximum 65536 bytes)"
			}`,
		},
		{
			name: "validation failed",
			body: `{"username": "a", "email": "alice"}`,
			code: http.StatusBadRequest,
			expected: `{
				"error": "validation_failed",
				"message": "Request validation failed",
				"fields": {
					"username": "Value is too short (minimum 2)",
					"email": "Invalid email address",
					"password": "This field is required"
				}
			}`,
		},
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := BindAndValidate[login](w, r)
		if err != nil {
			return
		}
		JSON(w, map[string]string{"username": data.Username})
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := record(t, func(w http.ResponseWriter) {
				handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(tt.body)))
			})

			require.Equal(t, tt.code, code)
			require.JSONEq(t, tt.expected, body)
		})
	}
}

func TestRender_ValidationErrors(t *testing.T) {
	type register struct {
		Username string `validate:"max=3"`
		Password string `validate:"uuid"`
	}

	err := validator.New().Struct(register{Username: "alice", Password: "Secret123!"})
	var errs validator.ValidationErrors
	require.ErrorAs(t, err, &errs, "test expects validation to fail")

	code, body := record(t, func(w http.ResponseWriter) {
		ValidationErrors(w, errs)
	})

	require.Equal(t, http.StatusBadRequest, code)
	require.JSONEq(t, `{
		"error": "validation_failed",
		"message": "Request validation failed",
		"fields": {
			"Username": "Value is too long (maximum 3)",
			"Password": "Invalid value"
		}
	}`, body)
}
