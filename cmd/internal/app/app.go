// Package app wires the notebox server runtime: config, logging, storage, HTTP routes and tracing.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"notebox/cmd/identity"
	authapi "notebox/cmd/internal/auth/api"
	"notebox/cmd/internal/auth/session"
	"notebox/cmd/internal/folders"
)

// App is the notebox server runtime. It owns the DB pool and Redis client.
type App struct {
	cfg Config
	log Logger

	pool  *pgxpool.Pool
	redis *redis.Client

	registry    *prometheus.Registry
	httpMetrics *httpMetrics

	users   identity.Store
	auth    *authapi.Handler
	folders *folders.Handler
}

// New constructs a fully wired App. Without NOTEBOX_DATABASE_URL it runs on in-memory stores.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	a := &App{cfg: cfg, log: log, registry: newRegistry()}
	a.httpMetrics = newHTTPMetrics(a.registry)

	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if err := a.openStores(ctx); err != nil {
		return nil, err
	}

	key, err := ResolveSigningKey(cfg.Token, log)
	if err != nil {
		return nil, err
	}
	issuer, err := session.NewIssuer(cfg.Token, key)
	if err != nil {
		return nil, err
	}
	sessions := session.NewService(issuer, a.users, log)

	creds, err := identity.NewCredentials(cfg.Password)
	if err != nil {
		return nil, err
	}

	opts := []authapi.HandlerOption{
		authapi.WithMetrics(authapi.NewMetrics(a.registry)),
	}
	if a.redis != nil {
		opts = append(opts, authapi.WithLoginLimiter(authapi.NewRedisLimiter(a.redis, cfg.Auth.LoginWindow)))
	}
	if a.pool != nil {
		opts = append(opts, authapi.WithAuditor(authapi.NewPostgresAuditor(a.pool, log)))
	}

	a.auth, err = authapi.NewHandler(log, cfg.Auth, a.users, creds, sessions, opts...)
	if err != nil {
		return nil, err
	}

	var folderStore folders.Store = folders.NewMemoryStore()
	if a.pool != nil {
		folderStore, err = folders.NewPostgresStore(a.pool)
		if err != nil {
			return nil, err
		}
	}
	a.folders, err = folders.NewHandler(log, folderStore, a.users)
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		a.users = identity.NewMemoryStore()
	} else {
		pool, err := NewDBPool(ctx, a.cfg)
		if err != nil {
			return fmt.Errorf("db: %w", err)
		}
		a.pool = pool
		a.log.Info("db.enabled.postgres_store")

		if a.cfg.DBAutoMigrate {
			if err := MigrateDB(ctx, pool, a.log); err != nil {
				return err
			}
		}
		users, err := identity.NewPostgresStore(pool)
		if err != nil {
			return err
		}
		a.users = users
	}

	if a.cfg.RedisURL != "" {
		rdb, err := NewRedisClient(ctx, a.cfg.RedisURL)
		if err != nil {
			return err
		}
		a.redis = rdb
		a.log.Info("redis.enabled.login_limiter")
	}
	return nil
}

// Handler returns the fully wired HTTP handler.
func (a *App) Handler() http.Handler { return a.routes() }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.pool != nil, "redis_enabled", a.redis != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

// Close releases the DB pool and Redis client.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("redis.close.fail", "err", err)
		}
		a.redis = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

// NewRedisClient parses url and checks connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// OpenUserStore opens the account store for operator commands. The returned
// close func releases the pool.
func OpenUserStore(ctx context.Context, cfg Config, log Logger) (identity.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, errors.New("NOTEBOX_DATABASE_URL is required")
	}
	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("db: %w", err)
	}
	if cfg.DBAutoMigrate {
		if err := MigrateDB(ctx, pool, log); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	st, err := identity.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return st, pool.Close, nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
