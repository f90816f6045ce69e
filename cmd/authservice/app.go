package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nkiryanov/authservice/internal/apperrors"
	"github.com/nkiryanov/authservice/internal/db"
	"github.com/nkiryanov/authservice/internal/handlers"
	"github.com/nkiryanov/authservice/internal/logger"
	"github.com/nkiryanov/authservice/internal/metrics"
	"github.com/nkiryanov/authservice/internal/repository"
	"github.com/nkiryanov/authservice/internal/repository/postgres"
	"github.com/nkiryanov/authservice/internal/repository/redis"
	"github.com/nkiryanov/authservice/internal/service/auth"
	"github.com/nkiryanov/authservice/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/authservice/internal/service/user"
)

const (
	adminUsername = "admin"
	adminEmail    = "admin@example.com"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger logger.Logger
	closer func()
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Token manager first: bad key must fail before anything is connected
	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		SecretKey:  c.SecretKey,
		Issuer:     c.Issuer,
		Alg:        c.SigningAlg,
		AccessTTL:  c.AccessTTL,
		RefreshTTL: c.RefreshTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	storage, closer, err := openStorage(ctx, c)
	if err != nil {
		return nil, err
	}
	logger.Info("storage connected", "storage", c.Storage)

	// Initialize services
	userService := user.NewService(user.DefaultHasher, storage.User())
	authService, err := auth.NewService(auth.Config{}, tokenManager, userService, storage.User())
	if err != nil {
		closer()
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	if c.AdminPassword != "" {
		if err := bootstrapAdmin(ctx, userService, c.AdminPassword, logger); err != nil {
			closer()
			return nil, err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := handlers.NewRouter(
		authService,
		storage,
		metrics.New(registry),
		registry,
		logger,
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		logger:     logger,
		closer:     closer,
	}, nil
}

func openStorage(ctx context.Context, c *Config) (repository.Storage, func(), error) {
	switch c.Storage {
	case StoragePostgres:
		// Connect to the database and run migrations
		pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("error while connecting to db. Err: %w", err)
		}
		return postgres.NewStorage(pool), pool.Close, nil
	case StorageRedis:
		client, err := redis.Connect(ctx, c.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
		}
		return redis.NewStorage(client, redis.DefaultPrefix), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown storage %q", apperrors.ErrConfiguration, c.Storage)
	}
}

// Create admin user if not exists yet
func bootstrapAdmin(ctx context.Context, users *user.UserService, password string, l logger.Logger) error {
	_, err := users.Create(ctx, adminUsername, adminEmail, password)

	switch {
	case err == nil:
		l.Info("admin user created", "username", adminUsername)
		return nil
	case errors.Is(err, apperrors.ErrUserAlreadyExists):
		l.Debug("admin user exists already", "username", adminUsername)
		return nil
	default:
		return fmt.Errorf("error while creating admin user. Err: %w", err)
	}
}

// Release storage connections
func (s *ServerApp) Close() {
	s.closer()
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
