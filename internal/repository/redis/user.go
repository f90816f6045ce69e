package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nkiryanov/authservice/internal/apperrors"
	"github.com/nkiryanov/authservice/internal/models"
	"github.com/nkiryanov/authservice/internal/repository"
)

// User is stored as hash under 'user:{username}'
// 'email:{email}' and 'id:{id}' keys point to the username
type userHash struct {
	ID               string `redis:"id"`
	CreatedAt        int64  `redis:"created_at"`
	Username         string `redis:"username"`
	Email            string `redis:"email"`
	PasswordHash     string `redis:"password_hash"`
	RefreshHash      string `redis:"refresh_hash"`
	RefreshExpiresAt string `redis:"refresh_expires_at"` // unix microseconds, empty if no session
}

// KEYS: user, email, id
// ARGV: id, created_at, username, email, password_hash
var createUser = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 or redis.call('EXISTS', KEYS[2]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1],
	'id', ARGV[1],
	'created_at', ARGV[2],
	'username', ARGV[3],
	'email', ARGV[4],
	'password_hash', ARGV[5],
	'refresh_hash', '',
	'refresh_expires_at', '')
redis.call('SET', KEYS[2], ARGV[3])
redis.call('SET', KEYS[3], ARGV[3])
return 1
`)

// KEYS: user
// ARGV: hash, expires_at
var setRefresh = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'refresh_hash', ARGV[1], 'refresh_expires_at', ARGV[2])
return 1
`)

// KEYS: user
// ARGV: presented_hash, now, next_hash, next_expires_at
// Script runs atomically, so of two concurrent calls with the same hash only the first matches
var rotateRefresh = goredis.NewScript(`
local stored = redis.call('HGET', KEYS[1], 'refresh_hash')
if not stored or stored == '' or stored ~= ARGV[1] then
	return 0
end
local expires_at = tonumber(redis.call('HGET', KEYS[1], 'refresh_expires_at'))
if not expires_at or expires_at <= tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], 'refresh_hash', ARGV[3], 'refresh_expires_at', ARGV[4])
return 1
`)

type UserRepo struct {
	client goredis.UniversalClient
	keys   keys
}

func (r *UserRepo) CreateUser(ctx context.Context, params repository.CreateUserParams) (models.User, error) {
	user := models.User{
		ID:             uuid.New(),
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
		Username:       params.Username,
		Email:          params.Email,
		HashedPassword: params.HashedPassword,
	}

	created, err := createUser.Run(ctx, r.client,
		[]string{r.keys.user(user.Username), r.keys.email(user.Email), r.keys.id(user.ID.String())},
		user.ID.String(), user.CreatedAt.UnixMicro(), user.Username, user.Email, user.HashedPassword,
	).Int()
	if err != nil {
		return models.User{}, redisError(err)
	}
	if created == 0 {
		return models.User{}, apperrors.ErrUserAlreadyExists
	}

	return user, nil
}

func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	cmd := r.client.HGetAll(ctx, r.keys.user(username))
	if err := cmd.Err(); err != nil {
		return models.User{}, redisError(err)
	}
	if len(cmd.Val()) == 0 {
		return models.User{}, apperrors.ErrUserNotFound
	}

	var h userHash
	if err := cmd.Scan(&h); err != nil {
		return models.User{}, redisError(err)
	}

	return h.toUser()
}

func (r *UserRepo) SetRefresh(ctx context.Context, userID uuid.UUID, state models.RefreshState) error {
	username, err := r.usernameByID(ctx, userID)
	if err != nil {
		return err
	}

	hash, expiresAt := refreshArgs(state)
	updated, err := setRefresh.Run(ctx, r.client, []string{r.keys.user(username)}, hash, expiresAt).Int()
	if err != nil {
		return redisError(err)
	}
	if updated == 0 {
		return apperrors.ErrUserNotFound
	}

	return nil
}

func (r *UserRepo) RotateRefresh(ctx context.Context, userID uuid.UUID, presentedHash string, now time.Time, next models.RefreshState) error {
	username, err := r.usernameByID(ctx, userID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return apperrors.ErrInvalidRefreshToken
	case err != nil:
		return err
	}

	hash, expiresAt := refreshArgs(next)
	rotated, err := rotateRefresh.Run(ctx, r.client,
		[]string{r.keys.user(username)},
		presentedHash, now.UnixMicro(), hash, expiresAt,
	).Int()
	if err != nil {
		return redisError(err)
	}
	if rotated == 0 {
		return apperrors.ErrInvalidRefreshToken
	}

	return nil
}

func (r *UserRepo) usernameByID(ctx context.Context, userID uuid.UUID) (string, error) {
	username, err := r.client.Get(ctx, r.keys.id(userID.String())).Result()

	switch {
	case err == nil:
		return username, nil
	case errors.Is(err, goredis.Nil):
		return "", apperrors.ErrUserNotFound
	default:
		return "", redisError(err)
	}
}

func (h userHash) toUser() (models.User, error) {
	id, err := uuid.Parse(h.ID)
	if err != nil {
		return models.User{}, redisError(err)
	}

	user := models.User{
		ID:             id,
		CreatedAt:      time.UnixMicro(h.CreatedAt).UTC(),
		Username:       h.Username,
		Email:          h.Email,
		HashedPassword: h.PasswordHash,
	}

	if h.RefreshHash != "" && h.RefreshExpiresAt != "" {
		micros, err := strconv.ParseInt(h.RefreshExpiresAt, 10, 64)
		if err != nil {
			return models.User{}, redisError(err)
		}
		user.Refresh = models.RefreshState{TokenHash: h.RefreshHash, ExpiresAt: time.UnixMicro(micros).UTC()}
	}

	return user, nil
}

// Zero state stored as empty strings
func refreshArgs(state models.RefreshState) (hash string, expiresAt string) {
	if state.TokenHash == "" {
		return "", ""
	}
	return state.TokenHash, strconv.FormatInt(state.ExpiresAt.UnixMicro(), 10)
}
