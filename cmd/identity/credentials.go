package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notebox/cmd/security/password"
)

// Credentials hashes and checks account passwords.
//
// Every lookup that misses still runs a full hash verification against a dummy hash,
// so "unknown email" and "wrong password" cost the same.
type Credentials struct {
	cfg   password.Config
	dummy string
}

// NewCredentials builds a Credentials with cfg. cfg is expected to be normalized.
func NewCredentials(cfg password.Config) (*Credentials, error) {
	dummy, err := cfg.DummyHash()
	if err != nil {
		return nil, fmt.Errorf("identity: dummy hash: %w", err)
	}
	return &Credentials{cfg: cfg, dummy: dummy}, nil
}

// Policy returns the active password policy.
func (c *Credentials) Policy() password.Policy { return c.cfg.Policy }

// Hash validates plain against the policy and returns its encoded hash.
// Policy violations are returned as password.Err* sentinels.
func (c *Credentials) Hash(plain string) (string, error) {
	return c.cfg.Hash(plain)
}

// Verify reports whether plain matches hash; an empty hash verifies against the dummy.
func (c *Credentials) Verify(hash, plain string) bool {
	if hash == "" {
		hash = c.dummy
	}
	ok, err := c.cfg.Verify(hash, plain)
	return err == nil && ok
}

// Authenticate resolves email to an account and checks plain against it.
//
// Unknown email and wrong password both yield ErrInvalidCredentials. A suspended account
// with the right password yields ErrNotActive. Legacy or weaker hashes are upgraded in
// place after a successful check; upgrade failures do not fail the login.
func (c *Credentials) Authenticate(ctx context.Context, st Store, email, plain string) (User, error) {
	const op = "identity.Authenticate"

	u, err := st.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
	case IsNotFound(err):
		_ = c.Verify("", plain)
		return User{}, OpError{Op: op, Kind: ErrInvalidCredentials}
	default:
		return User{}, err
	}

	if !c.Verify(u.PasswordHash, plain) {
		return User{}, OpError{Op: op, Kind: ErrInvalidCredentials}
	}
	if u.Disabled() {
		return User{}, OpError{Op: op, Kind: ErrNotActive, Msg: "account disabled"}
	}

	if c.cfg.NeedsRehash(u.PasswordHash) {
		if upgraded, herr := c.cfg.Hash(plain); herr == nil {
			if st.UpdatePasswordHash(ctx, u.ID, upgraded, time.Now().UTC()) == nil {
				u.PasswordHash = upgraded
			}
		}
	}
	return u, nil
}

// ChangePassword checks oldPlain and stores a hash of newPlain.
// A wrong oldPlain yields ErrInvalidCredentials; a policy violation yields a password.Err*.
func (c *Credentials) ChangePassword(ctx context.Context, st Store, userID, oldPlain, newPlain string) error {
	const op = "identity.ChangePassword"

	u, err := st.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !c.Verify(u.PasswordHash, oldPlain) {
		return OpError{Op: op, Kind: ErrInvalidCredentials}
	}

	hash, err := c.cfg.Hash(newPlain)
	if err != nil {
		if password.IsPolicyViolation(err) {
			return err
		}
		return fmt.Errorf("%s: hash: %w", op, err)
	}
	if err := st.UpdatePasswordHash(ctx, userID, hash, time.Now().UTC()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
