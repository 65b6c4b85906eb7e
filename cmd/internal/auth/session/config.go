package session

import (
	"fmt"
	"strings"
	"time"

	"notebox/cmd/security/token"
)

// DefaultTTL is the fixed lifetime of a session token.
const DefaultTTL = 7 * 24 * time.Hour

// Config defines the runtime configuration of the Token Issuer.
// It is loaded as part of the app config with the NOTEBOX_TOKEN_ prefix.
type Config struct {
	// Issuer is the value set in the "iss" claim.
	Issuer string `env:"ISSUER,default=notebox"`

	// TTL is the token lifetime.
	TTL time.Duration `env:"TTL,default=168h"`

	// Leeway tolerates small clock differences on exp/iat checks.
	Leeway time.Duration `env:"LEEWAY,default=0s"`

	// Secret is the HMAC signing secret (NOTEBOX_TOKEN_SECRET).
	Secret string `env:"SECRET"`

	// RequireStrongSecret refuses to start without a secret of at least token.MinSecretBytes.
	RequireStrongSecret bool `env:"REQUIRE_STRONG_SECRET,default=false"`
}

// DefaultConfig returns the baseline configuration with no secret set.
func DefaultConfig() Config {
	return Config{
		Issuer: "notebox",
		TTL:    DefaultTTL,
	}
}

// Validate checks invariants. A missing secret is allowed unless RequireStrongSecret is set;
// callers then fall back to a random per-process secret.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Issuer) == "" {
		return fmt.Errorf("%w: empty issuer", ErrConfig)
	}
	if c.TTL <= 0 {
		return fmt.Errorf("%w: ttl must be positive", ErrConfig)
	}
	if c.Leeway < 0 || c.Leeway > time.Hour {
		return fmt.Errorf("%w: leeway out of range [0..1h]", ErrConfig)
	}
	if c.RequireStrongSecret {
		if _, err := token.ParseSecret(c.Secret, token.MinSecretBytes); err != nil {
			return fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}
	return nil
}

// SigningKey returns the configured secret. ok is false when none is set.
func (c Config) SigningKey() (key []byte, ok bool, err error) {
	minBytes := 0
	if c.RequireStrongSecret {
		minBytes = token.MinSecretBytes
	}
	key, err = token.ParseSecret(c.Secret, minBytes)
	switch {
	case err == nil:
		return key, true, nil
	case strings.TrimSpace(c.Secret) == "" && !c.RequireStrongSecret:
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("%w: %v", ErrConfig, err)
	}
}
