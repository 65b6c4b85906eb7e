package identity

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"notebox/cmd/security/password"
)

func newTestCredentials(t *testing.T) *Credentials {
	t.Helper()

	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1

	c, err := NewCredentials(cfg)
	if err != nil {
		t.Fatalf("NewCredentials: %v", err)
	}
	return c
}

func mustCreate(t *testing.T, st Store, c *Credentials, name, email, pw string) User {
	t.Helper()

	h, err := c.Hash(pw)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u, err := st.CreateUser(context.Background(), CreateUserInput{Name: name, Email: email, PasswordHash: h})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return u
}

func TestAuthenticate(t *testing.T) {
	c := newTestCredentials(t)
	st := NewMemoryStore()
	ctx := context.Background()
	alice := mustCreate(t, st, c, "Alice", "alice@x.com", "secret1")

	u, err := c.Authenticate(ctx, st, "ALICE@x.com", "secret1")
	if err != nil || u.ID != alice.ID {
		t.Fatalf("expected success, got %+v %v", u, err)
	}

	if _, err := c.Authenticate(ctx, st, "alice@x.com", "wrong1"); !IsInvalidCredentials(err) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := c.Authenticate(ctx, st, "ghost@x.com", "secret1"); !IsInvalidCredentials(err) {
		t.Fatalf("unknown email must look like a wrong password, got %v", err)
	}
}

func TestAuthenticate_Disabled(t *testing.T) {
	c := newTestCredentials(t)
	st := NewMemoryStore()
	ctx := context.Background()
	alice := mustCreate(t, st, c, "Alice", "alice@x.com", "secret1")

	if _, err := st.SetDisabled(ctx, alice.ID, true, alice.CreatedAt); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, err := c.Authenticate(ctx, st, "alice@x.com", "secret1"); !IsNotActive(err) {
		t.Fatalf("expected not active, got %v", err)
	}
	if _, err := c.Authenticate(ctx, st, "alice@x.com", "wrong1"); !IsInvalidCredentials(err) {
		t.Fatalf("wrong password on a disabled account must stay invalid credentials, got %v", err)
	}
}

func TestAuthenticate_UpgradesLegacyBcrypt(t *testing.T) {
	c := newTestCredentials(t)
	st := NewMemoryStore()
	ctx := context.Background()

	legacy, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	u, err := st.CreateUser(ctx, CreateUserInput{Name: "Old", Email: "old@x.com", PasswordHash: string(legacy)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := c.Authenticate(ctx, st, "old@x.com", "secret1"); err != nil {
		t.Fatalf("legacy login: %v", err)
	}
	got, _ := st.GetUserByID(ctx, u.ID)
	if got.PasswordHash == string(legacy) {
		t.Fatalf("expected hash upgrade")
	}
	if _, err := c.Authenticate(ctx, st, "old@x.com", "secret1"); err != nil {
		t.Fatalf("login after upgrade: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	c := newTestCredentials(t)
	st := NewMemoryStore()
	ctx := context.Background()
	alice := mustCreate(t, st, c, "Alice", "alice@x.com", "secret1")

	if err := c.ChangePassword(ctx, st, alice.ID, "nope", "secret2"); !IsInvalidCredentials(err) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if err := c.ChangePassword(ctx, st, alice.ID, "secret1", "123"); !errors.Is(err, password.ErrPasswordTooShort) {
		t.Fatalf("expected too short, got %v", err)
	}
	if err := c.ChangePassword(ctx, st, alice.ID, "secret1", "secret2"); err != nil {
		t.Fatalf("change: %v", err)
	}
	if _, err := c.Authenticate(ctx, st, "alice@x.com", "secret2"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}
