package folders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"notebox/cmd/identity/ids"
)

// PostgresStore implements Store over the folders table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("folders: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Create(ctx context.Context, ownerID, name string, now time.Time) (Folder, error) {
	name = NormalizeName(name)
	if !validName(name) {
		return Folder{}, ErrInvalidName
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Folder{}, err
	}

	var f Folder
	err = s.pool.QueryRow(ctx, `
		INSERT INTO folders (id, owner_id, name, name_norm, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, owner_id, name, created_at
	`, id, ownerID, name, nameKey(name), now).Scan(&f.ID, &f.OwnerID, &f.Name, &f.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return Folder{}, ErrExists
			case "23503":
				return Folder{}, ErrOwnerNotFound
			}
		}
		return Folder{}, fmt.Errorf("folders: create: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) List(ctx context.Context, ownerID string) ([]Folder, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, name, created_at
		  FROM folders
		 WHERE owner_id = $1
		 ORDER BY created_at, id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("folders: list: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Folder, error) {
		var f Folder
		err := row.Scan(&f.ID, &f.OwnerID, &f.Name, &f.CreatedAt)
		return f, err
	})
	if err != nil {
		return nil, fmt.Errorf("folders: list: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, ownerID, id string) error {
	if !ids.IsULID(id) {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM folders WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("folders: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
