package identity

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used in dev mode (no DATABASE_URL) and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string // email_norm -> id
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

// CreateUser inserts a new account, enforcing case-insensitive email uniqueness.
func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	in, err := validateCreate(op, in)
	if err != nil {
		return User{}, err
	}

	id, err := NewULID(in.Now)
	if err != nil {
		return User{}, err
	}

	u := User{
		ID:           id,
		Name:         in.Name,
		Email:        in.Email,
		EmailNorm:    NormalizeEmail(in.Email),
		PasswordHash: in.PasswordHash,
		CreatedAt:    in.Now,
		UpdatedAt:    in.Now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[u.EmailNorm]; taken {
		return User{}, ConflictError{Op: op, Field: "email"}
	}
	s.byID[u.ID] = u
	s.byEmail[u.EmailNorm] = u.ID
	return u, nil
}

// GetUserByID returns the account with id.
func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, userNotFound("identity.GetUserByID")
	}
	return u, nil
}

// GetUserByEmail looks the account up by normalized email.
func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return User{}, userNotFound("identity.GetUserByEmail")
	}
	return s.byID[id], nil
}

// UpdateProfile applies name/email changes.
func (s *MemoryStore) UpdateProfile(ctx context.Context, id string, in UpdateProfileInput) (User, error) {
	const op = "identity.UpdateProfile"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	in, err := validateProfile(op, in)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, userNotFound(op)
	}

	if in.Email != nil {
		norm := NormalizeEmail(*in.Email)
		if owner, taken := s.byEmail[norm]; taken && owner != id {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
		delete(s.byEmail, u.EmailNorm)
		u.Email = *in.Email
		u.EmailNorm = norm
		s.byEmail[norm] = id
	}
	if in.Name != nil {
		u.Name = *in.Name
	}
	u.UpdatedAt = in.Now
	s.byID[id] = u
	return u, nil
}

// UpdatePasswordHash replaces the stored hash.
func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error {
	const op = "identity.UpdatePasswordHash"

	if err := ctx.Err(); err != nil {
		return err
	}
	if hash == "" {
		return invalid(op, "password hash is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return userNotFound(op)
	}
	u.PasswordHash = hash
	u.UpdatedAt = nowOr(now)
	s.byID[id] = u
	return nil
}

// SetDisabled suspends or reinstates the account.
func (s *MemoryStore) SetDisabled(ctx context.Context, id string, disabled bool, now time.Time) (User, error) {
	const op = "identity.SetDisabled"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, userNotFound(op)
	}
	now = nowOr(now)
	switch {
	case disabled && u.DisabledAt == nil:
		u.DisabledAt = &now
	case !disabled:
		u.DisabledAt = nil
	}
	u.UpdatedAt = now
	s.byID[id] = u
	return u, nil
}

// DeleteUser removes the account.
func (s *MemoryStore) DeleteUser(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return userNotFound("identity.DeleteUser")
	}
	delete(s.byID, id)
	delete(s.byEmail, u.EmailNorm)
	return nil
}

func nowOr(now time.Time) time.Time {
	if now.IsZero() {
		return time.Now().UTC()
	}
	return now
}

var _ Store = (*MemoryStore)(nil)
