// Package credstore persists the device's session credentials in a local SQLite file.
//
// The record is two keys, authToken and userData, that are always written and cleared
// together. Load never fails: a broken or partial record reads as empty.
package credstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	v1 "notebox/shared/contracts/auth/v1"
)

// Persisted keys.
const (
	KeyToken = "authToken"
	KeyUser  = "userData"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// ErrIncompleteCredentials is returned by Save when the token or the user id is missing.
var ErrIncompleteCredentials = errors.New("credstore: incomplete credentials")

//go:embed sql/*.sql
var migrations embed.FS

// Record is the stored session. The zero value means "no session".
type Record struct {
	Token string
	User  v1.User
}

// Empty reports whether r holds no usable session.
func (r Record) Empty() bool {
	return r.Token == "" || strings.TrimSpace(r.User.ID) == ""
}

// Store is the SQLite-backed credential store. Safe for concurrent use.
type Store struct {
	db  *sql.DB
	log *slog.Logger

	mu sync.Mutex // serializes writes
}

// Open opens (or creates) the database at path and applies migrations.
func Open(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if path == "" {
		return nil, errors.New("credstore: empty path")
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("credstore: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("credstore: open: %w", err)
	}
	// One connection: every :memory: connection is its own database, and a single
	// writer keeps file locking out of the picture.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, log: log}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "sql")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("credstore: provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("credstore: migrate: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Save stores token and user as one record.
func (s *Store) Save(ctx context.Context, token string, user v1.User) error {
	if token == "" || strings.TrimSpace(user.ID) == "" {
		return ErrIncompleteCredentials
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("credstore: encode user: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := set(ctx, tx, KeyToken, []byte(token)); err != nil {
			return err
		}
		return set(ctx, tx, KeyUser, raw)
	})
}

// Load returns the stored record, or the empty record on any fault. Both keys are read
// in one statement so a concurrent Save or Clear is never seen half applied.
func (s *Store) Load(ctx context.Context) Record {
	vals, err := s.getPair(ctx)
	if err != nil {
		s.log.Warn("credstore.load.fail", "err", err)
		return Record{}
	}
	token, rawUser := vals[KeyToken], vals[KeyUser]
	if token == nil || rawUser == nil {
		return Record{}
	}

	var u v1.User
	if err := json.Unmarshal(rawUser, &u); err != nil {
		s.log.Warn("credstore.load.decode_fail", "err", err)
		return Record{}
	}
	rec := Record{Token: string(token), User: u}
	if rec.Empty() {
		return Record{}
	}
	return rec
}

// Token returns only the stored token, or "" when none.
func (s *Store) Token(ctx context.Context) string {
	return s.Load(ctx).Token
}

// Clear removes the record. Failures are logged, not returned.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM metadata WHERE key IN (?, ?)`, KeyToken, KeyUser)
		return err
	})
	if err != nil {
		s.log.Error("credstore.clear.fail", "err", err)
	}
}

// ValidateStructure reports whether token has the three dot-separated segments of a
// signed token. A malformed token clears the store.
func (s *Store) ValidateStructure(ctx context.Context, token string) bool {
	if WellFormed(token) {
		return true
	}
	s.log.Warn("credstore.token.malformed")
	s.Clear(ctx)
	return false
}

// WellFormed reports whether token has exactly three non-empty dot-separated segments.
func WellFormed(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

func (s *Store) getPair(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM metadata WHERE key IN (?, ?)`, KeyToken, KeyUser)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]byte, 2)
	for rows.Next() {
		var (
			k string
			v []byte
		)
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func set(ctx context.Context, tx *sql.Tx, key string, value []byte) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("credstore: set %s: %w", key, err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("credstore: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("credstore: commit: %w", err)
	}
	return nil
}
