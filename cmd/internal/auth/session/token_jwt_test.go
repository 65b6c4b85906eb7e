package session

import (
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testKey = []byte("0123456789abcdef0123456789abcdef")

func newTestIssuer(t *testing.T) (*Issuer, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	iss, err := NewIssuer(DefaultConfig(), testKey, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return iss, clock
}

func TestIssueThenValidate(t *testing.T) {
	iss, clock := newTestIssuer(t)

	tok, exp, err := iss.Issue(Subject{ID: "01HABCDEFGHJKMNPQRSTVWXYZ0", Email: "alice@x.com"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if strings.Count(tok, ".") != 2 {
		t.Fatalf("expected three segments, got %q", tok)
	}
	if want := clock.Now().Add(7 * 24 * time.Hour); !exp.Equal(want) {
		t.Fatalf("expiry mismatch: got=%s want=%s", exp, want)
	}

	sub, err := iss.Validate(tok)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if sub.ID != "01HABCDEFGHJKMNPQRSTVWXYZ0" || sub.Email != "alice@x.com" {
		t.Fatalf("unexpected subject: %+v", sub)
	}
}

func TestPayloadCarriesIDAndEmailOnly(t *testing.T) {
	iss, _ := newTestIssuer(t)

	tok, _, err := iss.Issue(Subject{ID: "u1", Email: "alice@x.com"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.Split(tok, ".")[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	s := string(payload)
	for _, want := range []string{`"id":"u1"`, `"email":"alice@x.com"`, `"exp":`, `"iat":`} {
		if !strings.Contains(s, want) {
			t.Fatalf("payload %s missing %s", s, want)
		}
	}
	if strings.Contains(strings.ToLower(s), "password") {
		t.Fatalf("payload must not carry secrets: %s", s)
	}
}

func TestExpiredAfterSevenDays(t *testing.T) {
	iss, clock := newTestIssuer(t)

	tok, _, err := iss.Issue(Subject{ID: "u1", Email: "alice@x.com"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.Advance(7*24*time.Hour - time.Second)
	if _, err := iss.Validate(tok); err != nil {
		t.Fatalf("token must still be valid just before expiry: %v", err)
	}

	clock.Advance(2 * time.Second)
	if _, err := iss.Validate(tok); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	sub, err := iss.ValidateIgnoringExpiry(tok)
	if err != nil {
		t.Fatalf("ValidateIgnoringExpiry: %v", err)
	}
	if sub.ID != "u1" {
		t.Fatalf("unexpected subject: %+v", sub)
	}
}

func TestInvalidSignature(t *testing.T) {
	iss, clock := newTestIssuer(t)

	other, err := NewIssuer(DefaultConfig(), []byte("another-secret-another-secret-xx"), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	forged, _, err := other.Issue(Subject{ID: "u1", Email: "alice@x.com"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := iss.Validate(forged); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	clock.Advance(30 * 24 * time.Hour)
	if _, err := iss.ValidateIgnoringExpiry(forged); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("bypass must still reject bad signatures, got %v", err)
	}
}

func TestTamperedPayload(t *testing.T) {
	iss, _ := newTestIssuer(t)

	tok, _, _ := iss.Issue(Subject{ID: "u1", Email: "alice@x.com"})
	parts := strings.Split(tok, ".")
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(`{"id":"admin","email":"a@x.com","iss":"notebox","iat":1,"exp":9999999999}`))

	if _, err := iss.ValidateIgnoringExpiry(strings.Join(parts, ".")); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestAlgNoneRejected(t *testing.T) {
	iss, clock := newTestIssuer(t)

	claims := Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "notebox",
			IssuedAt:  jwt.NewNumericDate(clock.Now()),
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	if _, err := iss.Validate(tok); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestMalformed(t *testing.T) {
	iss, _ := newTestIssuer(t)

	for _, raw := range []string{"", "abc", "a.b", "a.b.c.d", "!!!.???.###"} {
		if _, err := iss.Validate(raw); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%q: expected ErrMalformed, got %v", raw, err)
		}
		if _, err := iss.ValidateIgnoringExpiry(raw); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%q: expected ErrMalformed from bypass, got %v", raw, err)
		}
	}
}

func TestWrongIssuer(t *testing.T) {
	iss, clock := newTestIssuer(t)

	cfg := DefaultConfig()
	cfg.Issuer = "someone-else"
	foreign, err := NewIssuer(cfg, testKey, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	tok, _, _ := foreign.Issue(Subject{ID: "u1"})

	if _, err := iss.Validate(tok); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if _, err := iss.ValidateIgnoringExpiry(tok); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed from bypass, got %v", err)
	}
}

func TestNewIssuer_Config(t *testing.T) {
	if _, err := NewIssuer(DefaultConfig(), nil); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for empty key, got %v", err)
	}

	cfg := DefaultConfig()
	cfg.TTL = 0
	if _, err := NewIssuer(cfg, testKey); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for zero ttl, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.RequireStrongSecret = true
	cfg.Secret = "short"
	if err := cfg.Validate(); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for short secret, got %v", err)
	}
}

func TestSigningKey(t *testing.T) {
	cfg := DefaultConfig()

	if _, ok, err := cfg.SigningKey(); ok || err != nil {
		t.Fatalf("missing secret in relaxed mode must be ok=false err=nil, got ok=%v err=%v", ok, err)
	}

	cfg.Secret = string(testKey)
	key, ok, err := cfg.SigningKey()
	if err != nil || !ok || string(key) != string(testKey) {
		t.Fatalf("unexpected: key=%q ok=%v err=%v", key, ok, err)
	}

	cfg.Secret = ""
	cfg.RequireStrongSecret = true
	if _, _, err := cfg.SigningKey(); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}
