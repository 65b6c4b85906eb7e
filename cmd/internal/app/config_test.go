package app

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestLoadConfigWith_Defaults(t *testing.T) {
	cfg, err := LoadConfigWith(context.Background(), envconfig.MapLookuper(map[string]string{}))
	if err != nil {
		t.Fatalf("LoadConfigWith: %v", err)
	}

	if cfg.HTTPAddr != "0.0.0.0:8080" || cfg.LogFormat != "json" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Token.TTL != 7*24*time.Hour || cfg.Token.Issuer != "notebox" {
		t.Fatalf("unexpected token defaults: %+v", cfg.Token)
	}
	if cfg.Auth.LoginMaxFailures != 5 || cfg.Auth.LoginWindow != 15*time.Minute {
		t.Fatalf("unexpected auth defaults: %+v", cfg.Auth)
	}
	if cfg.Password.Policy.MinLength != 6 || cfg.Password.Params.Parallelism == 0 {
		t.Fatalf("unexpected password defaults: %+v", cfg.Password)
	}
	if !cfg.DBAutoMigrate || cfg.RateLimitPerMinute != 300 {
		t.Fatalf("unexpected db/rate defaults: %+v", cfg)
	}
}

func TestLoadConfigWith_Overrides(t *testing.T) {
	cfg, err := LoadConfigWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"HTTP_ADDR":               "127.0.0.1:9000",
		"CORS_ALLOWED_ORIGINS":    "https://a.example.com,https://b.example.com",
		"TOKEN_SECRET":            "0123456789abcdef0123456789abcdef",
		"TOKEN_TTL":               "24h",
		"AUTH_TRUST_PROXY":        "true",
		"AUTH_LOGIN_MAX_FAILURES": "3",
		"PASSWORD_MIN_LEN":        "8",
	}))
	if err != nil {
		t.Fatalf("LoadConfigWith: %v", err)
	}

	if cfg.HTTPAddr != "127.0.0.1:9000" {
		t.Fatalf("addr=%q", cfg.HTTPAddr)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("origins=%v", cfg.CORSAllowedOrigins)
	}
	if cfg.Token.Secret == "" || cfg.Token.TTL != 24*time.Hour {
		t.Fatalf("token=%+v", cfg.Token)
	}
	if !cfg.Auth.TrustProxy || cfg.Auth.LoginMaxFailures != 3 {
		t.Fatalf("auth=%+v", cfg.Auth)
	}
	if cfg.Password.Policy.MinLength != 8 {
		t.Fatalf("password=%+v", cfg.Password.Policy)
	}
}

func TestLoadConfigWith_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"strict without secret": {"TOKEN_REQUIRE_STRONG_SECRET": "true"},
		"short strict secret":   {"TOKEN_REQUIRE_STRONG_SECRET": "true", "TOKEN_SECRET": "short"},
		"bad ttl":               {"TOKEN_TTL": "-1h"},
		"bad duration":          {"HTTP_READ_TIMEOUT": "soon"},
		"password range":        {"ARGON2_MEMORY_KIB": "1"},
		"min over max conns":    {"DB_MIN_CONNS": "20", "DB_MAX_CONNS": "5"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfigWith(context.Background(), envconfig.MapLookuper(env)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
