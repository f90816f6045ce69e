package handlers

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nkiryanov/authservice/internal/handlers/middleware"
	"github.com/nkiryanov/authservice/internal/logger"
	"github.com/nkiryanov/authservice/internal/metrics"
	"github.com/nkiryanov/authservice/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	storage storagePinger,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	logger logger.Logger,
) http.Handler {
	withAuth := middleware.AuthMiddleware(authService, m)

	apiauth := http.NewServeMux()

	apiauth.Handle("POST /register", m.Instrument("register", handleRegister(authService, m, logger)))
	apiauth.Handle("POST /login", m.Instrument("login", handleLogin(authService, m, logger)))
	apiauth.Handle("POST /refresh-token", m.Instrument("refresh", handleTokenRefresh(authService, m, logger)))
	apiauth.Handle("POST /logout", m.Instrument("logout", withAuth(handleLogout(authService, m, logger))))
	apiauth.Handle("GET /me", m.Instrument("me", withAuth(handleUserMe())))

	health := m.Instrument("health", handleHealth(storage, logger))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))
	root.Handle("GET /api/health", health)
	root.Handle("POST /api/health", health)
	root.Handle("GET /metrics", metrics.Handler(gatherer))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Register user, session is not started
	// Has to return apperrors.ErrUserAlreadyExists if user already exists
	Register(ctx context.Context, username string, email string, password string) (models.User, error)

	// Login user with username and password
	// Has to return apperrors.ErrInvalidCredentials if user not found or password is wrong
	Login(ctx context.Context, username string, password string) (models.TokenPair, error)

	// Exchange access (may be expired) and refresh tokens for the new pair
	// Has to return apperrors.ErrInvalidToken or apperrors.ErrInvalidRefreshToken
	Refresh(ctx context.Context, access string, refresh string) (models.TokenPair, error)

	// Clear user session
	// Has to return apperrors.ErrUserNotFound if user not found
	Logout(ctx context.Context, username string) error

	// Verify access token
	Authenticate(access string) (models.AccessClaims, error)
}

type storagePinger interface {
	Ping(ctx context.Context) error
}
