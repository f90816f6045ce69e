package user

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/nkiryanov/authservice/internal/apperrors"
	"github.com/nkiryanov/authservice/internal/models"
	"github.com/nkiryanov/authservice/internal/repository"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 256
)

var usernameRegexp = regexp.MustCompile(`^[A-Za-z0-9\-._@+]+$`)

type newUser struct {
	Username string `validate:"required,min=2,max=50,username"`
	Email    string `validate:"required,max=254,email"`
}

// UserService owns user credentials: it validates and hashes passwords and checks them on login
type UserService struct {
	hasher    PasswordHasher
	users     repository.UserRepo
	validate  *validator.Validate
	dummyHash func() (string, error)
}

func NewService(hasher PasswordHasher, users repository.UserRepo) *UserService {
	if hasher == nil {
		hasher = DefaultHasher
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRegexp.MatchString(fl.Field().String())
	})

	return &UserService{
		hasher:   hasher,
		users:    users,
		validate: validate,

		// Hash to compare with when user not found, so both paths take the same time
		dummyHash: sync.OnceValues(func() (string, error) {
			return hasher.Hash("dummy-password-to-equalize-timing")
		}),
	}
}

// Create user with validated username, email and password
// Email is stored lower-cased
func (s *UserService) Create(ctx context.Context, username string, email string, password string) (models.User, error) {
	var user models.User

	params := newUser{
		Username: username,
		Email:    strings.ToLower(strings.TrimSpace(email)),
	}
	if err := s.validate.Struct(params); err != nil {
		return user, fmt.Errorf("%w: %s", apperrors.ErrInvalidInput, describe(err))
	}

	if err := CheckPasswordPolicy(password); err != nil {
		return user, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	user, err = s.users.CreateUser(ctx, repository.CreateUserParams{
		Username:       params.Username,
		Email:          params.Email,
		HashedPassword: hash,
	})
	if err != nil {
		return user, fmt.Errorf("can't create user. Err: %w", err)
	}

	return user, nil
}

// Verify username and password pair
// Unknown user and wrong password are reported with the same error apperrors.ErrInvalidCredentials
func (s *UserService) Verify(ctx context.Context, username string, password string) (models.User, error) {
	user, err := s.users.GetUserByUsername(ctx, username)

	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		if hash, hashErr := s.dummyHash(); hashErr == nil {
			_ = s.hasher.Compare(hash, password)
		}
		return models.User{}, apperrors.ErrInvalidCredentials
	case err != nil:
		return models.User{}, err
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.User{}, apperrors.ErrInvalidCredentials
	}

	return user, nil
}

// Password has to be 8..256 chars long and contain upper and lower case letter, digit and special char
func CheckPasswordPolicy(password string) error {
	n := len([]rune(password))
	if n < minPasswordLen {
		return fmt.Errorf("%w: must be at least %d characters long", apperrors.ErrWeakCredential, minPasswordLen)
	}
	if n > maxPasswordLen {
		return fmt.Errorf("%w: must be at most %d characters long", apperrors.ErrWeakCredential, maxPasswordLen)
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}

	var missing []string
	if !upper {
		missing = append(missing, "uppercase letter")
	}
	if !lower {
		missing = append(missing, "lowercase letter")
	}
	if !digit {
		missing = append(missing, "digit")
	}
	if !special {
		missing = append(missing, "special character")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: must contain at least one %s", apperrors.ErrWeakCredential, strings.Join(missing, ", "))
	}

	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s is not valid (%s)", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
