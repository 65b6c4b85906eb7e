package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pgx pool is owned by the caller; this store does not close it. Table names are
// unqualified unless WithSchema is given, so they resolve through search_path.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema qualifies table names with schema.
// The schema name must be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const userColumns = `id, name, email, email_norm, password_hash, created_at, updated_at, disabled_at`

func (s *PostgresStore) users() string {
	if s.schema == "" {
		return pgx.Identifier{"users"}.Sanitize()
	}
	return pgx.Identifier{s.schema, "users"}.Sanitize()
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.EmailNorm,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.DisabledAt,
	)
	return u, err
}

// CreateUser inserts a new account.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	in, err := validateCreate(op, in)
	if err != nil {
		return User{}, err
	}
	id, err := NewULID(in.Now)
	if err != nil {
		return User{}, err
	}

	u, err := scanUser(s.pool.QueryRow(ctx,
		`INSERT INTO `+s.users()+` (id, name, email, email_norm, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 RETURNING `+userColumns,
		id, in.Name, in.Email, NormalizeEmail(in.Email), in.PasswordHash, in.Now,
	))
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUserByID returns the account with id.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+s.users()+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, userNotFound(op)
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUserByEmail looks the account up by normalized email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.GetUserByEmail"

	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+s.users()+` WHERE email_norm = $1`, NormalizeEmail(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, userNotFound(op)
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// UpdateProfile applies the non-nil fields of in.
func (s *PostgresStore) UpdateProfile(ctx context.Context, id string, in UpdateProfileInput) (User, error) {
	const op = "identity.UpdateProfile"

	in, err := validateProfile(op, in)
	if err != nil {
		return User{}, err
	}

	q := sq.Update(s.users()).
		PlaceholderFormat(sq.Dollar).
		Set("updated_at", in.Now).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + userColumns)
	if in.Name != nil {
		q = q.Set("name", *in.Name)
	}
	if in.Email != nil {
		q = q.Set("email", *in.Email).Set("email_norm", NormalizeEmail(*in.Email))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return User{}, fmt.Errorf("%s: build: %w", op, err)
	}

	u, err := scanUser(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, userNotFound(op)
		}
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// UpdatePasswordHash replaces the stored hash.
func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error {
	const op = "identity.UpdatePasswordHash"

	if hash == "" {
		return invalid(op, "password hash is required")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.users()+` SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, hash, nowOr(now))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return userNotFound(op)
	}
	return nil
}

// SetDisabled suspends or reinstates the account. Suspending twice keeps the first timestamp.
func (s *PostgresStore) SetDisabled(ctx context.Context, id string, disabled bool, now time.Time) (User, error) {
	const op = "identity.SetDisabled"

	now = nowOr(now)
	var disabledAt *time.Time
	if disabled {
		disabledAt = &now
	}

	u, err := scanUser(s.pool.QueryRow(ctx,
		`UPDATE `+s.users()+`
		    SET disabled_at = CASE WHEN $2::timestamptz IS NULL THEN NULL
		                           ELSE COALESCE(disabled_at, $2::timestamptz) END,
		        updated_at = $3
		  WHERE id = $1
		  RETURNING `+userColumns,
		id, disabledAt, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, userNotFound(op)
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// DeleteUser removes the account. Owned rows cascade.
func (s *PostgresStore) DeleteUser(ctx context.Context, id string) error {
	const op = "identity.DeleteUser"

	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.users()+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return userNotFound(op)
	}
	return nil
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable constraint names, fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_users_email_norm", strings.Contains(c, "email"):
		return "email", true
	default:
		return "unique", true
	}
}

var _ Store = (*PostgresStore)(nil)
