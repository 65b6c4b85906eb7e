package credstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "notebox/shared/contracts/auth/v1"
)

const testToken = "aaa.bbb.ccc"

var alice = v1.User{ID: "01J0000000000000000000000A", Name: "Alice", Email: "alice@example.com"}

func openMemory(t *testing.T) *Store {
	t.Helper()
	st, err := Open(context.Background(), MemoryPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSaveLoadRoundTrip(t *testing.T) {
	st := openMemory(t)
	ctx := context.Background()

	assert.True(t, st.Load(ctx).Empty())

	require.NoError(t, st.Save(ctx, testToken, alice))
	rec := st.Load(ctx)
	assert.Equal(t, testToken, rec.Token)
	assert.Equal(t, alice, rec.User)
	assert.Equal(t, testToken, st.Token(ctx))
}

func TestSaveOverwrites(t *testing.T) {
	st := openMemory(t)
	ctx := context.Background()

	require.NoError(t, st.Save(ctx, testToken, alice))
	bob := v1.User{ID: "01J0000000000000000000000B", Name: "Bob", Email: "bob@example.com"}
	require.NoError(t, st.Save(ctx, "x.y.z", bob))

	rec := st.Load(ctx)
	assert.Equal(t, "x.y.z", rec.Token)
	assert.Equal(t, bob, rec.User)
}

func TestSaveRejectsIncomplete(t *testing.T) {
	st := openMemory(t)
	ctx := context.Background()

	require.ErrorIs(t, st.Save(ctx, "", alice), ErrIncompleteCredentials)
	require.ErrorIs(t, st.Save(ctx, testToken, v1.User{Email: "a@b.c"}), ErrIncompleteCredentials)
	assert.True(t, st.Load(ctx).Empty())
}

func TestClear(t *testing.T) {
	st := openMemory(t)
	ctx := context.Background()

	require.NoError(t, st.Save(ctx, testToken, alice))
	st.Clear(ctx)
	assert.Equal(t, Record{}, st.Load(ctx))

	// Clearing an empty store is a no-op.
	st.Clear(ctx)
}

func TestLoadTreatsPartialRecordAsEmpty(t *testing.T) {
	st := openMemory(t)
	ctx := context.Background()

	_, err := st.db.ExecContext(ctx, `INSERT INTO metadata (key, value) VALUES (?, ?)`, KeyToken, []byte(testToken))
	require.NoError(t, err)
	assert.True(t, st.Load(ctx).Empty())
}

func TestLoadTreatsCorruptUserAsEmpty(t *testing.T) {
	st := openMemory(t)
	ctx := context.Background()

	require.NoError(t, st.Save(ctx, testToken, alice))
	_, err := st.db.ExecContext(ctx, `UPDATE metadata SET value = ? WHERE key = ?`, []byte("{not json"), KeyUser)
	require.NoError(t, err)

	assert.Equal(t, Record{}, st.Load(ctx))
}

func TestLoadAfterCloseIsEmpty(t *testing.T) {
	st := openMemory(t)
	ctx := context.Background()

	require.NoError(t, st.Save(ctx, testToken, alice))
	require.NoError(t, st.Close())
	assert.Equal(t, Record{}, st.Load(ctx))
}

func TestValidateStructure(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		token string
		ok    bool
	}{
		{testToken, true},
		{"a.b", false},
		{"a.b.c.d", false},
		{"a..c", false},
		{"", false},
	}
	for _, tc := range tests {
		t.Run(tc.token, func(t *testing.T) {
			st := openMemory(t)
			require.NoError(t, st.Save(ctx, testToken, alice))

			assert.Equal(t, tc.ok, st.ValidateStructure(ctx, tc.token))
			assert.Equal(t, tc.ok, !st.Load(ctx).Empty(), "store cleared only for malformed tokens")
		})
	}
}

func TestOpenFileCreatesParentAndPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "dir", "session.db")

	st, err := Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, testToken, alice))
	require.NoError(t, st.Close())

	st, err = Open(ctx, path, nil)
	require.NoError(t, err)
	defer st.Close()
	assert.Equal(t, alice, st.Load(ctx).User)
}

func TestLoadNeverMixesRecords(t *testing.T) {
	st := openMemory(t)
	ctx := context.Background()

	bob := v1.User{ID: "u-bob", Name: "Bob", Email: "bob@example.com"}
	pairs := []Record{
		{Token: "a.a.a", User: alice},
		{Token: "b.b.b", User: bob},
	}
	owner := map[string]string{"a.a.a": alice.ID, "b.b.b": bob.ID}
	require.NoError(t, st.Save(ctx, pairs[0].Token, pairs[0].User))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			p := pairs[i%2]
			assert.NoError(t, st.Save(ctx, p.Token, p.User))
		}
	}()

	torn := 0
	for i := 0; i < 2000; i++ {
		rec := st.Load(ctx)
		if rec.Empty() || owner[rec.Token] != rec.User.ID {
			torn++
		}
	}
	close(stop)
	wg.Wait()

	assert.Zero(t, torn, "Load returned a token with another record's user")
}
