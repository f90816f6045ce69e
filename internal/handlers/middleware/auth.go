package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/nkiryanov/authservice/internal/apperrors"
	"github.com/nkiryanov/authservice/internal/handlers/render"
	"github.com/nkiryanov/authservice/internal/handlers/userctx"
	"github.com/nkiryanov/authservice/internal/metrics"
	"github.com/nkiryanov/authservice/internal/models"
)

const bearerScheme = "Bearer"

type authenticator interface {
	Authenticate(access string) (models.AccessClaims, error)
}

// Require valid access token in 'Authorization: Bearer <token>' header
// Claims of the token are put to request context, every verification is counted in metrics
func AuthMiddleware(a authenticator, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access, ok := bearerToken(r)
			if !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := a.Authenticate(access)
			m.ObserveAuth(metrics.OpVerify, err)

			switch {
			case err == nil:
			case errors.Is(err, apperrors.ErrTokenExpired):
				render.ServiceError(w, "Token expired", http.StatusUnauthorized)
				return
			default:
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := userctx.New(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}
