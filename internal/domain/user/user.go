package user

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/example/grocery-delivery/internal/apperr"
	"github.com/example/grocery-delivery/internal/auth"
	"github.com/google/uuid"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleVendor
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

var (
	ErrUserNotFound       = apperr.New(apperr.KindNotFound, "User not found")
	ErrMissingFields      = apperr.New(apperr.KindInvalidInput, "Missing required fields")
	ErrInvalidEmail       = apperr.New(apperr.KindInvalidInput, "Invalid email format")
	ErrPasswordTooShort   = apperr.New(apperr.KindInvalidInput, "Password must be at least 6 characters")
	ErrInvalidRole        = apperr.New(apperr.KindInvalidInput, "Invalid role")
	ErrEmailExists        = apperr.New(apperr.KindConflict, "Email already exists")
	ErrInvalidCredentials = apperr.New(apperr.KindUnauthorized, "Invalid credentials")
	ErrUnauthorized       = apperr.New(apperr.KindUnauthorized, "Unauthorized")
)

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role"`
}

// Caller is the verified (subject, role) pair an operation runs on behalf of.
type Caller struct {
	UserID string
	Role   Role
}

// RequireCustomer gates cart and order operations.
func (c Caller) RequireCustomer() error {
	if c.UserID == "" || c.Role != RoleCustomer {
		return ErrUnauthorized
	}
	return nil
}

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
}

type Service struct {
	repo Repository
	log  *slog.Logger
}

func NewService(repo Repository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Register creates a customer or vendor account.
func (s *Service) Register(ctx context.Context, email, password string, role Role) (*User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" || role == "" {
		return nil, ErrMissingFields
	}
	if !emailPattern.MatchString(email) {
		return nil, ErrInvalidEmail
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			return nil, ErrPasswordTooShort
		}
		return nil, apperr.Internal(err)
	}

	u := &User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	s.log.Info("user registered", "user_id", u.ID, "role", u.Role)
	return u, nil
}

// Authenticate checks credentials and returns the account they belong to.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "Missing email or password")
	}

	u, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Get returns the account with the given id.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}
