package app

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"notebox/cmd/internal/auth/session"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestResolveSigningKey(t *testing.T) {
	cfg := session.DefaultConfig()

	key, err := ResolveSigningKey(cfg, discardLogger())
	if err != nil {
		t.Fatalf("dev mode: %v", err)
	}
	if len(key) < 32 {
		t.Fatalf("ephemeral key too short: %d", len(key))
	}

	cfg.Secret = "  configured-secret  "
	key, err = ResolveSigningKey(cfg, discardLogger())
	if err != nil || string(key) != "configured-secret" {
		t.Fatalf("configured: key=%q err=%v", key, err)
	}

	cfg.RequireStrongSecret = true
	if _, err := ResolveSigningKey(cfg, discardLogger()); !errors.Is(err, session.ErrConfig) {
		t.Fatalf("strict short: expected ErrConfig, got %v", err)
	}

	cfg.Secret = strings.Repeat("k", 32)
	if _, err := ResolveSigningKey(cfg, discardLogger()); err != nil {
		t.Fatalf("strict ok: %v", err)
	}
}
