// Package folders is the notes-folder resource. Every operation is scoped to the
// authenticated owner.
package folders

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"notebox/cmd/identity/ids"
)

var (
	ErrExists      = errors.New("folder already exists")
	ErrNotFound    = errors.New("folder not found")
	ErrInvalidName = errors.New("invalid folder name")

	// ErrOwnerNotFound is returned by Create when the owning account is gone.
	ErrOwnerNotFound = errors.New("folder owner not found")
)

// MaxNameLength bounds folder names in runes.
const MaxNameLength = 100

// Folder is a user-owned container for notes.
type Folder struct {
	ID        string
	OwnerID   string
	Name      string
	CreatedAt time.Time
}

// Store persists folders.
type Store interface {
	Create(ctx context.Context, ownerID, name string, now time.Time) (Folder, error)
	List(ctx context.Context, ownerID string) ([]Folder, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// NormalizeName trims and collapses whitespace.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func nameKey(name string) string { return strings.ToLower(NormalizeName(name)) }

func validName(name string) bool {
	n := len([]rune(name))
	return n > 0 && n <= MaxNameLength
}

// MemoryStore keeps folders in process.
type MemoryStore struct {
	mu      sync.RWMutex
	byOwner map[string]map[string]Folder // owner -> id -> folder
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byOwner: make(map[string]map[string]Folder)}
}

func (s *MemoryStore) Create(ctx context.Context, ownerID, name string, now time.Time) (Folder, error) {
	if err := ctx.Err(); err != nil {
		return Folder{}, err
	}
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

	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.byOwner[ownerID]
	if owned == nil {
		owned = make(map[string]Folder)
		s.byOwner[ownerID] = owned
	}
	key := nameKey(name)
	for _, f := range owned {
		if nameKey(f.Name) == key {
			return Folder{}, ErrExists
		}
	}

	f := Folder{ID: id, OwnerID: ownerID, Name: name, CreatedAt: now}
	owned[id] = f
	return f, nil
}

func (s *MemoryStore) List(ctx context.Context, ownerID string) ([]Folder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]Folder, 0, len(s.byOwner[ownerID]))
	for _, f := range s.byOwner[ownerID] {
		out = append(out, f)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, ownerID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byOwner[ownerID][id]; !ok {
		return ErrNotFound
	}
	delete(s.byOwner[ownerID], id)
	return nil
}

var _ Store = (*MemoryStore)(nil)
