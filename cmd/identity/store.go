package identity

import (
	"context"
	"strings"
	"time"
)

// User is the canonical notebox account.
type User struct {
	ID        string
	Name      string
	Email     string
	EmailNorm string

	// PasswordHash is an encoded Argon2id (or legacy bcrypt) hash. Never serialize it.
	PasswordHash string

	CreatedAt  time.Time
	UpdatedAt  time.Time
	DisabledAt *time.Time
}

// Disabled reports whether the account has been suspended.
func (u User) Disabled() bool { return u.DisabledAt != nil }

// CreateUserInput describes a registration. PasswordHash is produced by the caller.
type CreateUserInput struct {
	Name         string
	Email        string
	PasswordHash string
	Now          time.Time
}

// UpdateProfileInput carries optional profile changes; nil fields are left as-is.
type UpdateProfileInput struct {
	Name  *string
	Email *string
	Now   time.Time
}

// Store is the account persistence boundary.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)

	// UpdateProfile returns ConflictError{Field:"email"} when the new email is taken.
	UpdateProfile(ctx context.Context, id string, in UpdateProfileInput) (User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error
	SetDisabled(ctx context.Context, id string, disabled bool, now time.Time) (User, error)
	DeleteUser(ctx context.Context, id string) error
}

func validateCreate(op string, in CreateUserInput) (CreateUserInput, error) {
	in.Name = NormalizeName(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	switch {
	case in.Name == "":
		return in, invalid(op, "name is required")
	case in.Email == "":
		return in, invalid(op, "email is required")
	case in.PasswordHash == "":
		return in, invalid(op, "password hash is required")
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	return in, nil
}

func validateProfile(op string, in UpdateProfileInput) (UpdateProfileInput, error) {
	if in.Name != nil {
		n := NormalizeName(*in.Name)
		if n == "" {
			return in, invalid(op, "name is empty")
		}
		in.Name = &n
	}
	if in.Email != nil {
		e := strings.TrimSpace(*in.Email)
		if e == "" {
			return in, invalid(op, "email is empty")
		}
		in.Email = &e
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	return in, nil
}
