package handlers

import (
	"net/http"
	"time"

	"github.com/nkiryanov/authservice/internal/apperrors"
	"github.com/nkiryanov/authservice/internal/handlers/render"
	"github.com/nkiryanov/authservice/internal/handlers/userctx"
	"github.com/nkiryanov/authservice/internal/logger"
	"github.com/nkiryanov/authservice/internal/metrics"
	"github.com/nkiryanov/authservice/internal/models"
)

type messageResponse struct {
	Message string `json:"message"`
}

type tokenResponse struct {
	Token                 string    `json:"token"`
	RefreshToken          string    `json:"refreshToken"`
	TokenExpiresAt        time.Time `json:"tokenExpiresAt"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

func newTokenResponse(pair models.TokenPair) tokenResponse {
	return tokenResponse{
		Token:                 pair.Access.Value,
		RefreshToken:          pair.Refresh.Value,
		TokenExpiresAt:        pair.Access.ExpiresAt,
		RefreshTokenExpiresAt: pair.Refresh.ExpiresAt,
	}
}

func handleRegister(authService authService, m *metrics.Metrics, l logger.Logger) http.Handler {
	type request struct {
		Username string `json:"username" validate:"required,min=2,max=50"`
		Email    string `json:"email" validate:"required,email,max=254"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		_, err = authService.Register(r.Context(), data.Username, data.Email, data.Password)
		m.ObserveAuth(metrics.OpRegister, err)

		if err != nil {
			if !render.Error(w, err) {
				l.Error("Failed to register user", "error", err)
			}
			return
		}

		l.Info("user registered", "username", data.Username)
		render.JSON(w, messageResponse{Message: "User registered successfully"})
	})
}

func handleLogin(authService authService, m *metrics.Metrics, l logger.Logger) http.Handler {
	type request struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := authService.Login(r.Context(), data.Username, data.Password)
		m.ObserveAuth(metrics.OpLogin, err)

		if err != nil {
			if !render.Error(w, err) {
				l.Error("Failed to login user", "error", err)
				return
			}
			l.Info("login failed", "username", data.Username, "reason", apperrors.Code(err))
			return
		}

		render.JSON(w, newTokenResponse(pair))
	})
}

func handleTokenRefresh(authService authService, m *metrics.Metrics, l logger.Logger) http.Handler {
	type request struct {
		Token        string `json:"token" validate:"required"`
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := authService.Refresh(r.Context(), data.Token, data.RefreshToken)
		m.ObserveAuth(metrics.OpRefresh, err)

		if err != nil {
			if !render.Error(w, err) {
				l.Error("Failed to refresh tokens", "error", err)
			}
			return
		}

		render.JSON(w, newTokenResponse(pair))
	})
}

// Logout user the access token belongs to
func handleLogout(authService authService, m *metrics.Metrics, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		err := authService.Logout(r.Context(), claims.Subject)
		m.ObserveAuth(metrics.OpLogout, err)

		if err != nil {
			if !render.Error(w, err) {
				l.Error("Failed to logout user", "error", err)
			}
			return
		}

		render.JSON(w, messageResponse{Message: "Logged out successfully"})
	})
}
