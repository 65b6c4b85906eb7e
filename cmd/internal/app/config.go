package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"

	authapi "notebox/cmd/internal/auth/api"
	"notebox/cmd/internal/auth/session"
	"notebox/cmd/security/password"
)

// EnvPrefix prefixes every server environment variable.
const EnvPrefix = "NOTEBOX_"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR,default=0.0.0.0:8080"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT,default=5s"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT,default=15s"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT,default=15s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT,default=60s"`
	MaxHeaderBytes    int           `env:"HTTP_MAX_HEADER_BYTES,default=1048576"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	DatabaseURL   string `env:"DATABASE_URL"`
	DBMaxConns    int32  `env:"DB_MAX_CONNS,default=10"`
	DBMinConns    int32  `env:"DB_MIN_CONNS,default=0"`
	DBAutoMigrate bool   `env:"DB_AUTO_MIGRATE,default=true"`

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool `env:"READINESS_REQUIRE_DB,default=false"`

	// RedisURL enables the shared login limiter. Empty means per-process limits.
	RedisURL string `env:"REDIS_URL"`

	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"`
	CORSAllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS,default=false"`
	CORSMaxAgeSeconds    int      `env:"CORS_MAX_AGE_SECONDS,default=600"`

	// RateLimitPerMinute is the global per-IP request budget. 0 disables it.
	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE,default=300"`

	OTLPEndpoint string `env:"OTLP_ENDPOINT"`

	Token session.Config `env:",prefix=TOKEN_"`
	Auth  authapi.Config `env:",prefix=AUTH_"`

	// Password is reloaded through password.FromLookuper so its range checks apply.
	Password password.Config
}

// LoadConfig loads Config from NOTEBOX_* environment variables.
func LoadConfig(ctx context.Context) (Config, error) {
	return LoadConfigWith(ctx, envconfig.PrefixLookuper(EnvPrefix, envconfig.OsLookuper()))
}

// LoadConfigWith loads Config from l. Keys are looked up without the NOTEBOX_ prefix.
func LoadConfigWith(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	pw, err := password.FromLookuper(ctx, l)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.Password = pw

	if err := cfg.Token.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if cfg.DBMinConns > cfg.DBMaxConns && cfg.DBMaxConns > 0 {
		return Config{}, fmt.Errorf("config: DB_MIN_CONNS (%d) > DB_MAX_CONNS (%d)", cfg.DBMinConns, cfg.DBMaxConns)
	}
	return cfg, nil
}
