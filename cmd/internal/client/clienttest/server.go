// Package clienttest runs the real notebox API in-process for client tests.
package clienttest

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"notebox/cmd/identity"
	authapi "notebox/cmd/internal/auth/api"
	"notebox/cmd/internal/auth/session"
	"notebox/cmd/internal/folders"
	"notebox/cmd/security/password"
)

// Clock is a manually advanced clock shared by the server's token issuer.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Server is an in-memory notebox API.
type Server struct {
	URL   string
	Clock *Clock
	Users *identity.MemoryStore
}

// NewServer starts the API and stops it when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &Clock{now: time.Now().UTC()}

	iss, err := session.NewIssuer(session.DefaultConfig(), []byte("clienttest-signing-key-0123456789abcdef"), session.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	users := identity.NewMemoryStore()

	pw := password.DefaultConfig()
	pw.Params.MemoryKiB = 8 * 1024
	pw.Params.Iterations = 1
	pw.Params.Parallelism = 1
	creds, err := identity.NewCredentials(pw)
	if err != nil {
		t.Fatalf("NewCredentials: %v", err)
	}

	auth, err := authapi.NewHandler(log, authapi.DefaultConfig(), users, creds, session.NewService(iss, users, log))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	r := chi.NewRouter()
	auth.Mount(r)
	fh, err := folders.NewHandler(log, folders.NewMemoryStore(), users)
	if err != nil {
		t.Fatalf("folders.NewHandler: %v", err)
	}
	fh.Mount(r, auth.RequireAuth)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &Server{URL: srv.URL, Clock: clock, Users: users}
}

// ExpireTokens moves the server clock past the token lifetime.
func (s *Server) ExpireTokens() {
	s.Clock.Advance(session.DefaultConfig().TTL + time.Minute)
}
