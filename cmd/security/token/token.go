package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// SecretEnvKey is the env var name for the token signing secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	SecretEnvKey = "NOTEBOX_TOKEN_SECRET"

	// MinSecretBytes is the minimum secret size enforced in strict mode (HS256 block size / 2).
	MinSecretBytes = 32

	fingerprintLen = 16
)

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns a short, stable identifier for a raw token that is safe to log.
func Fingerprint(raw string) string {
	if raw == "" {
		return ""
	}
	return HashSHA256Hex(raw)[:fingerprintLen]
}

// ParseSecret trims raw and enforces minBytes when positive.
func ParseSecret(raw string, minBytes int) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrSecretMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, fmt.Errorf("%w: got %d bytes, need %d", ErrSecretTooShort, len(b), minBytes)
	}
	return b, nil
}

// RandomSecret returns a hex-encoded random secret of n bytes. It backs dev mode when
// no secret is configured; tokens signed with it do not survive a restart.
func RandomSecret(n int) ([]byte, error) {
	if n <= 0 {
		n = MinSecretBytes
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return []byte(hex.EncodeToString(b)), nil
}
