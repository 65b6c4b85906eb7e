package app

import (
	"context"
	"time"
)

// Serve loads config, starts tracing and runs the server until ctx is done.
// It returns an error instead of calling os.Exit to keep defers effective.
func Serve(ctx context.Context) error {
	cfg, err := LoadConfig(ctx)
	if err != nil {
		return err
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	shutdownTracing, err := InitTracing(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Error("otel.shutdown.fail", "err", err)
		}
	}()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx)
}

// Migrate applies pending migrations and exits.
func Migrate(ctx context.Context) error {
	cfg, err := LoadConfig(ctx)
	if err != nil {
		return err
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)
	if cfg.DatabaseURL == "" {
		log.Warn("db.migrate.skipped", "reason", "NOTEBOX_DATABASE_URL not set")
		return nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	return MigrateDB(ctx, pool, log)
}
