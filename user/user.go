package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleSurveyor Role = "surveyor"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleSurveyor
}

var (
	ErrEmailExists   = errors.New("email already exists")
	ErrInvalidEmail  = errors.New("invalid email format")
	ErrBlankPassword = errors.New("password can't be blank")
	ErrInvalidRole   = errors.New("role must be admin or surveyor")
	ErrUserNotFound  = errors.New("user not found")
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	Project      string    `json:"project"`
	Location     string    `json:"location"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile is the display side of a user, joined into trip listings.
type Profile struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Phone    string    `json:"phone"`
	Project  string    `json:"project"`
	Location string    `json:"location"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Phone:    u.Phone,
		Project:  u.Project,
		Location: u.Location,
	}
}

type Registration struct {
	Email    string
	Password string
	Name     string
	Phone    string
	Role     Role
	Project  string
	Location string
}

// newUser validates r and hashes its password.
func newUser(r Registration) (*User, error) {
	if r.Email == "" {
		return nil, ErrInvalidEmail
	}
	if r.Password == "" {
		return nil, ErrBlankPassword
	}
	if r.Role == "" {
		r.Role = RoleSurveyor
	}
	if !r.Role.Valid() {
		return nil, ErrInvalidRole
	}

	hash, err := hashPassword(r.Password)
	if err != nil {
		return nil, err
	}

	return &User{
		ID:           uuid.New(),
		Name:         r.Name,
		Email:        r.Email,
		Phone:        r.Phone,
		Role:         r.Role,
		Active:       true,
		Project:      r.Project,
		Location:     r.Location,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// GetByID and GetByEmail return nil, nil when no user matches.
type Repository interface {
	Register(ctx context.Context, r Registration) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	VerifyPassword(hashedPassword, password string) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Profiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Profile, error)
}
