package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	authapi "notebox/cmd/internal/auth/api"
	v1 "notebox/shared/contracts/auth/v1"
)

// routes builds the server handler: middleware stack, probes, metrics and API routes.
func (a *App) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(WithRequestID)
	r.Use(func(next http.Handler) http.Handler { return WithRequestLogging(next, a.log) })
	r.Use(WithSecurityHeaders)
	r.Use(a.httpMetrics.middleware)

	if len(a.cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   a.cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
			ExposedHeaders:   []string{RequestIDHeader, "Retry-After"},
			AllowCredentials: a.cfg.CORSAllowCredentials,
			MaxAge:           a.cfg.CORSMaxAgeSeconds,
		}))
	}

	if a.cfg.RateLimitPerMinute > 0 {
		r.Use(httprate.Limit(a.cfg.RateLimitPerMinute, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				authapi.WriteError(w, http.StatusTooManyRequests, v1.CodeTooManyAttempts, "rate limit exceeded")
			}),
		))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		authapi.WriteError(w, http.StatusNotFound, v1.CodeNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		authapi.WriteError(w, http.StatusMethodNotAllowed, v1.CodeMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/readyz", a.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	a.auth.Mount(r)
	a.folders.Mount(r, a.auth.RequireAuth)

	return otelhttp.NewHandler(r, ServiceName)
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.cfg.ReadinessRequireDB && a.pool == nil {
		http.Error(w, "db not configured", http.StatusServiceUnavailable)
		return
	}

	if a.pool != nil {
		if err := PingDB(r.Context(), a.pool, 2*time.Second); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			a.log.Info("readyz.db.not_ready", "err", err)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready\n"))
}
