package app

import (
	"fmt"

	"notebox/cmd/internal/auth/session"
	"notebox/cmd/security/token"
)

// ResolveSigningKey returns the configured token secret.
//
// Without one, and unless NOTEBOX_REQUIRE_STRONG_SECRET is set, a random per-process
// secret is generated and every issued token dies with the process.
func ResolveSigningKey(cfg session.Config, log Logger) ([]byte, error) {
	key, ok, err := cfg.SigningKey()
	if err != nil {
		return nil, fmt.Errorf("security policy: %w", err)
	}
	if ok {
		log.Info("security.token_secret.loaded", "bytes", len(key), "strict", cfg.RequireStrongSecret)
		return key, nil
	}

	key, err = token.RandomSecret(token.MinSecretBytes)
	if err != nil {
		return nil, fmt.Errorf("security policy: random secret: %w", err)
	}
	log.Warn("security.token_secret.ephemeral", "hint", "set "+token.SecretEnvKey+" so tokens survive restarts")
	return key, nil
}
