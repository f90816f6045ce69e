package postgres

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authservice/internal/apperrors"
	"github.com/nkiryanov/authservice/internal/models"
	"github.com/nkiryanov/authservice/internal/repository"
	"github.com/nkiryanov/authservice/internal/testutil"
)

func Test_UserRepo(t *testing.T) {
	t.Parallel() // It's ok to run in parallel with other tests, but not with subtests

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	now := time.Date(2025, 1, 1, 19, 0, 0, 0, time.UTC)

	params := func(username string) repository.CreateUserParams {
		return repository.CreateUserParams{
			Username:       username,
			Email:          username + "@example.com",
			HashedPassword: "hashedpassword123",
		}
	}

	t.Run("create user ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			user, err := r.CreateUser(t.Context(), params("testuser"))

			require.NoError(t, err)
			assert.Equal(t, "testuser", user.Username)
			assert.Equal(t, "testuser@example.com", user.Email)
			assert.Equal(t, "hashedpassword123", user.HashedPassword)
			assert.WithinDuration(t, time.Now(), user.CreatedAt, time.Second, "CreatedAt should be recent")
			assert.Zero(t, user.Refresh, "new user has no session")
		})
	})

	t.Run("create duplicate fail", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			_, err := r.CreateUser(t.Context(), params("testuser"))
			require.NoError(t, err)

			_, err = r.CreateUser(t.Context(), params("testuser"))

			require.Error(t, err, "Should return error for duplicate username")
			require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
		})
	})

	t.Run("create duplicate email fail", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			_, err := r.CreateUser(t.Context(), params("testuser"))
			require.NoError(t, err)

			_, err = r.CreateUser(t.Context(), repository.CreateUserParams{
				Username:       "other",
				Email:          "testuser@example.com",
				HashedPassword: "hash",
			})

			require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
		})
	})

	t.Run("get user not found", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			_, err := r.GetUserByUsername(t.Context(), "nobody")
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound, "should return well known error")
		})
	})

	t.Run("get user by username ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.CreateUser(t.Context(), params("findbyusername"))
			require.NoError(t, err)

			got, err := r.GetUserByUsername(t.Context(), created.Username)

			require.NoError(t, err)
			assert.Equal(t, created.ID, got.ID)
			assert.Equal(t, created.Email, got.Email)
			assert.Equal(t, created.HashedPassword, got.HashedPassword)
			assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
		})
	})

	t.Run("set refresh and clear", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			user, err := r.CreateUser(t.Context(), params("alice"))
			require.NoError(t, err)
			state := models.RefreshState{TokenHash: "hash-1", ExpiresAt: now.Add(time.Hour)}

			err = r.SetRefresh(t.Context(), user.ID, state)
			require.NoError(t, err)

			got, err := r.GetUserByUsername(t.Context(), user.Username)
			require.NoError(t, err)
			assert.Equal(t, "hash-1", got.Refresh.TokenHash)
			assert.True(t, state.ExpiresAt.Equal(got.Refresh.ExpiresAt))

			err = r.SetRefresh(t.Context(), user.ID, models.RefreshState{})
			require.NoError(t, err)

			got, err = r.GetUserByUsername(t.Context(), user.Username)
			require.NoError(t, err)
			assert.Zero(t, got.Refresh, "session has to be cleared")
		})
	})

	t.Run("set refresh unknown user", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			err := r.SetRefresh(t.Context(), uuid.New(), models.RefreshState{TokenHash: "hash", ExpiresAt: now})

			require.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})

	t.Run("rotate refresh", func(t *testing.T) {
		current := models.RefreshState{TokenHash: "hash-1", ExpiresAt: now.Add(time.Hour)}
		next := models.RefreshState{TokenHash: "hash-2", ExpiresAt: now.Add(2 * time.Hour)}

		inTx := func(t *testing.T, fn func(r UserRepo, user models.User)) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				r := UserRepo{DB: tx}
				user, err := r.CreateUser(t.Context(), params("alice"))
				require.NoError(t, err)
				require.NoError(t, r.SetRefresh(t.Context(), user.ID, current))
				fn(r, user)
			})
		}

		t.Run("ok", func(t *testing.T) {
			inTx(t, func(r UserRepo, user models.User) {
				err := r.RotateRefresh(t.Context(), user.ID, "hash-1", now, next)
				require.NoError(t, err)

				got, err := r.GetUserByUsername(t.Context(), user.Username)
				require.NoError(t, err)
				assert.Equal(t, "hash-2", got.Refresh.TokenHash)
				assert.True(t, next.ExpiresAt.Equal(got.Refresh.ExpiresAt))
			})
		})

		t.Run("replay fail", func(t *testing.T) {
			inTx(t, func(r UserRepo, user models.User) {
				require.NoError(t, r.RotateRefresh(t.Context(), user.ID, "hash-1", now, next))

				err := r.RotateRefresh(t.Context(), user.ID, "hash-1", now, current)

				require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
			})
		})

		t.Run("mismatch fail", func(t *testing.T) {
			inTx(t, func(r UserRepo, user models.User) {
				err := r.RotateRefresh(t.Context(), user.ID, "other", now, next)

				require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
			})
		})

		t.Run("expired fail", func(t *testing.T) {
			inTx(t, func(r UserRepo, user models.User) {
				err := r.RotateRefresh(t.Context(), user.ID, "hash-1", current.ExpiresAt, next)
				require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken, "expiry equal to now is expired already")

				got, err := r.GetUserByUsername(t.Context(), user.Username)
				require.NoError(t, err)
				assert.Equal(t, "hash-1", got.Refresh.TokenHash, "failed rotation must not change state")
			})
		})

		t.Run("cleared session fail", func(t *testing.T) {
			inTx(t, func(r UserRepo, user models.User) {
				require.NoError(t, r.SetRefresh(t.Context(), user.ID, models.RefreshState{}))

				err := r.RotateRefresh(t.Context(), user.ID, "hash-1", now, next)

				require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
			})
		})
	})

	// Runs on the pool: concurrent statements need separate connections
	t.Run("only one concurrent rotation wins", func(t *testing.T) {
		r := UserRepo{DB: pg.Pool}
		user, err := r.CreateUser(t.Context(), params("racer-"+uuid.NewString()[:8]))
		require.NoError(t, err)
		require.NoError(t, r.SetRefresh(t.Context(), user.ID, models.RefreshState{TokenHash: "hash-1", ExpiresAt: now.Add(time.Hour)}))

		const racers = 8
		errs := make([]error, racers)
		var wg sync.WaitGroup
		for i := range racers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = r.RotateRefresh(t.Context(), user.ID, "hash-1", now, models.RefreshState{
					TokenHash: uuid.NewString(),
					ExpiresAt: now.Add(2 * time.Hour),
				})
			}()
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
		}
		require.Equal(t, 1, succeeded, "exactly one rotation has to succeed")
	})

	t.Run("ping", func(t *testing.T) {
		err := NewStorage(pg.Pool).Ping(t.Context())

		require.NoError(t, err)
	})
}
