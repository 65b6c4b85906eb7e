package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"notebox/cmd/identity"
	"notebox/cmd/security/token"
)

// Service ties the Issuer to the account store.
type Service struct {
	tokens *Issuer
	users  identity.Store
	log    *slog.Logger
}

// Issued is a freshly minted token with the profile snapshot it was issued for.
type Issued struct {
	Token     string
	ExpiresAt time.Time
	User      identity.User
}

// NewService constructs a Service.
func NewService(tokens *Issuer, users identity.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{tokens: tokens, users: users, log: log}
}

// Issuer returns the underlying token issuer.
func (s *Service) Issuer() *Issuer { return s.tokens }

// IssueFor mints a token for u.
func (s *Service) IssueFor(u identity.User) (Issued, error) {
	tok, exp, err := s.tokens.Issue(Subject{ID: u.ID, Email: u.Email})
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: tok, ExpiresAt: exp, User: u}, nil
}

// Authenticate validates a bearer token for a protected route.
func (s *Service) Authenticate(raw string) (Subject, error) {
	return s.tokens.Validate(raw)
}

// Refresh exchanges a possibly expired token for a new one and a fresh profile.
//
// Signature and structure are still enforced. The account is re-read so a deleted
// subject yields ErrUserNotFound and a suspended one ErrAccountDisabled.
func (s *Service) Refresh(ctx context.Context, raw string) (Issued, error) {
	sub, err := s.tokens.ValidateIgnoringExpiry(raw)
	if err != nil {
		return Issued{}, err
	}

	u, err := s.users.GetUserByID(ctx, sub.ID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return Issued{}, ErrUserNotFound
		}
		return Issued{}, fmt.Errorf("session: refresh lookup: %w", err)
	}
	if u.Disabled() {
		return Issued{}, ErrAccountDisabled
	}

	out, err := s.IssueFor(u)
	if err != nil {
		return Issued{}, err
	}
	s.log.Debug("session.refresh.issued", "user_id", u.ID, "old_fp", token.Fingerprint(raw), "new_fp", token.Fingerprint(out.Token))
	return out, nil
}
