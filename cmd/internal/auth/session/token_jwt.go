package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Subject is the identity carried by a session token.
type Subject struct {
	ID    string
	Email string
}

// Claims is the JWT payload: {id, email} plus registered claims (iss, iat, exp, jti).
type Claims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Issuer mints and validates HS256 session tokens.
type Issuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithClock overrides the time source used for issuing and validating.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIssuer builds an Issuer signing with key.
func NewIssuer(cfg Config, key []byte, opts ...IssuerOption) (*Issuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: empty signing key", ErrConfig)
	}

	i := &Issuer{
		key:    append([]byte(nil), key...),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		leeway: cfg.Leeway,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i, nil
}

// TTL returns the lifetime of issued tokens.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue mints a token for sub that expires TTL from now.
func (i *Issuer) Issue(sub Subject) (string, time.Time, error) {
	if strings.TrimSpace(sub.ID) == "" {
		return "", time.Time{}, fmt.Errorf("session: issue: empty subject id")
	}

	now := i.now().UTC()
	exp := now.Add(i.ttl)

	claims := Claims{
		UserID: sub.ID,
		Email:  sub.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   sub.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("session: sign: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Validate verifies signature, structure and expiry.
func (i *Issuer) Validate(raw string) (Subject, error) {
	return i.parse(raw, false)
}

// ValidateIgnoringExpiry verifies signature and structure but accepts an expired token.
// Only the refresh path may call it.
func (i *Issuer) ValidateIgnoringExpiry(raw string) (Subject, error) {
	return i.parse(raw, true)
}

func (i *Issuer) parse(raw string, ignoreExpiry bool) (Subject, error) {
	raw = strings.TrimSpace(raw)
	if strings.Count(raw, ".") != 2 {
		return Subject{}, ErrMalformed
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(i.leeway),
		jwt.WithTimeFunc(i.now),
	}
	if ignoreExpiry {
		// Signature is still verified; claims are checked by hand below.
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return i.key, nil
	}, opts...)
	if err != nil {
		return Subject{}, classify(err)
	}

	if ignoreExpiry && (claims.Issuer != i.issuer || claims.ExpiresAt == nil) {
		return Subject{}, ErrMalformed
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return Subject{}, ErrMalformed
	}
	return Subject{ID: claims.UserID, Email: claims.Email}, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrMalformed
	}
}
