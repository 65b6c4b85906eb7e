package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// EnvPrefix prefixes every client environment variable.
const EnvPrefix = "NOTEBOXCTL_"

// Config is the client configuration. Flags given on the command line win over env.
type Config struct {
	ServerURL string        `env:"SERVER_URL,default=http://localhost:8080"`
	DataPath  string        `env:"DATA_PATH"`
	Timeout   time.Duration `env:"TIMEOUT,default=30s"`
	LogLevel  string        `env:"LOG_LEVEL,default=warn"`
}

// LoadConfig reads NOTEBOXCTL_* variables through l.
func LoadConfig(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.PrefixLookuper(EnvPrefix, l),
	}); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if cfg.Timeout <= 0 {
		return Config{}, fmt.Errorf("config: %sTIMEOUT must be positive", EnvPrefix)
	}
	return cfg, nil
}

// DefaultDataPath is the session database location used when none is configured.
func DefaultDataPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: locate config dir: %w", err)
	}
	return filepath.Join(dir, "notebox", "session.db"), nil
}

func (c Config) dataPath() (string, error) {
	if p := strings.TrimSpace(c.DataPath); p != "" {
		return p, nil
	}
	return DefaultDataPath()
}
