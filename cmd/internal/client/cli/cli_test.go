package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notebox/cmd/internal/client/clienttest"
	"notebox/cmd/internal/client/credstore"
)

type harness struct {
	srv  *clienttest.Server
	data string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		srv:  clienttest.NewServer(t),
		data: filepath.Join(t.TempDir(), "session.db"),
	}
}

// run executes one noteboxctl invocation; passwords are answered in order.
func (h *harness) run(t *testing.T, stdin string, passwords []string, args ...string) (string, error) {
	t.Helper()

	var mu sync.Mutex
	next := func() ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(passwords) == 0 {
			return nil, assert.AnError
		}
		pw := passwords[0]
		passwords = passwords[1:]
		return []byte(pw), nil
	}

	var out, errOut bytes.Buffer
	err := Run(context.Background(), Options{
		In:           strings.NewReader(stdin),
		Out:          &out,
		Err:          &errOut,
		ReadPassword: next,
		Lookuper: envconfig.MapLookuper(map[string]string{
			"NOTEBOXCTL_SERVER_URL": h.srv.URL,
			"NOTEBOXCTL_DATA_PATH":  h.data,
		}),
	}, args)
	return out.String(), err
}

func (h *harness) stored(t *testing.T) credstore.Record {
	t.Helper()
	st, err := credstore.Open(context.Background(), h.data, nil)
	require.NoError(t, err)
	defer st.Close()
	return st.Load(context.Background())
}

func (h *harness) registerAlice(t *testing.T) {
	t.Helper()
	_, err := h.run(t, "", []string{"secret123", "secret123"}, "register", "--name", "Alice", "--email", "alice@example.com")
	require.NoError(t, err)
}

func TestRegisterPersistsAcrossRuns(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "Alice\nalice@example.com\n", []string{"secret123", "secret123"}, "register")
	require.NoError(t, err)
	assert.Contains(t, out, "registered and logged in as Alice <alice@example.com>")

	out, err = h.run(t, "", nil, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "logged in as Alice")

	assert.Equal(t, "alice@example.com", h.stored(t).User.Email)
}

func TestRegisterPasswordMismatch(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "", []string{"secret123", "other123"}, "register", "--name", "A", "--email", "a@example.com")
	require.ErrorContains(t, err, "passwords do not match")
	assert.True(t, h.stored(t).Empty())
}

func TestLoginWrongPasswordStoresNothing(t *testing.T) {
	h := newHarness(t)
	h.registerAlice(t)
	_, err := h.run(t, "", nil, "logout")
	require.NoError(t, err)

	_, err = h.run(t, "", []string{"wrong-password"}, "login", "--email", "alice@example.com")
	require.ErrorContains(t, err, "INVALID_CREDENTIALS")
	assert.True(t, h.stored(t).Empty())

	out, err := h.run(t, "", nil, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "not logged in")
}

func TestLoginAndLogout(t *testing.T) {
	h := newHarness(t)
	h.registerAlice(t)
	_, err := h.run(t, "", nil, "logout")
	require.NoError(t, err)

	out, err := h.run(t, "alice@example.com\n", []string{"secret123"}, "login")
	require.NoError(t, err)
	assert.Contains(t, out, "logged in as Alice")
	assert.False(t, h.stored(t).Empty())

	out, err = h.run(t, "", nil, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "logged out")
	assert.True(t, h.stored(t).Empty())
}

func TestProtectedCommandsNeedSession(t *testing.T) {
	h := newHarness(t)
	for _, args := range [][]string{{"profile"}, {"folders"}, {"passwd"}, {"refresh"}, {"folders", "create", "x"}} {
		_, err := h.run(t, "", nil, args...)
		assert.ErrorIs(t, err, errNotLoggedIn, strings.Join(args, " "))
	}
}

func TestFolders(t *testing.T) {
	h := newHarness(t)
	h.registerAlice(t)

	out, err := h.run(t, "", nil, "folders")
	require.NoError(t, err)
	assert.Contains(t, out, "no folders")

	out, err = h.run(t, "", nil, "folders", "create", "Inbox")
	require.NoError(t, err)
	assert.Contains(t, out, "created Inbox")

	_, err = h.run(t, "", nil, "folders", "create", "inbox")
	require.ErrorContains(t, err, "FOLDER_EXISTS")

	out, err = h.run(t, "", nil, "folders")
	require.NoError(t, err)
	assert.Contains(t, out, "Inbox")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	id := strings.Fields(lines[1])[0]

	out, err = h.run(t, "", nil, "folders", "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted "+id)
}

func TestExpiredSessionRefreshesTransparently(t *testing.T) {
	h := newHarness(t)
	h.registerAlice(t)
	before := h.stored(t).Token

	h.srv.ExpireTokens()

	out, err := h.run(t, "", nil, "profile")
	require.NoError(t, err)
	assert.Contains(t, out, "alice@example.com")
	assert.NotEqual(t, before, h.stored(t).Token)
}

func TestDeletedAccountEndsSession(t *testing.T) {
	h := newHarness(t)
	h.registerAlice(t)
	rec := h.stored(t)

	require.NoError(t, h.srv.Users.DeleteUser(context.Background(), rec.User.ID))
	h.srv.ExpireTokens()

	_, err := h.run(t, "", nil, "folders")
	require.ErrorContains(t, err, "session expired")
	assert.True(t, h.stored(t).Empty())
}

func TestStatusVerify(t *testing.T) {
	h := newHarness(t)
	h.registerAlice(t)
	rec := h.stored(t)

	out, err := h.run(t, "", nil, "status", "--verify")
	require.NoError(t, err)
	assert.Contains(t, out, "logged in as Alice")

	_, err = h.srv.Users.SetDisabled(context.Background(), rec.User.ID, true, h.srv.Clock.Now())
	require.NoError(t, err)
	h.srv.ExpireTokens()

	out, err = h.run(t, "", nil, "status", "--verify")
	require.NoError(t, err)
	assert.Contains(t, out, "not logged in")
}

func TestProfileUpdateAndPasswd(t *testing.T) {
	h := newHarness(t)
	h.registerAlice(t)

	out, err := h.run(t, "", nil, "profile", "update", "--name", "Alice B")
	require.NoError(t, err)
	assert.Contains(t, out, "Alice B")
	assert.Equal(t, "Alice B", h.stored(t).User.Name)

	_, err = h.run(t, "", []string{"wrong-old", "newsecret1", "newsecret1"}, "passwd")
	require.ErrorContains(t, err, "INVALID_CREDENTIALS")
	assert.False(t, h.stored(t).Empty(), "a wrong current password keeps the session")

	out, err = h.run(t, "", []string{"secret123", "newsecret1", "newsecret1"}, "passwd")
	require.NoError(t, err)
	assert.Contains(t, out, "password changed")

	_, err = h.run(t, "", nil, "logout")
	require.NoError(t, err)
	_, err = h.run(t, "", []string{"newsecret1"}, "login", "--email", "alice@example.com")
	require.NoError(t, err)
}

func TestProfileDeleteNeedsConfirmation(t *testing.T) {
	h := newHarness(t)
	h.registerAlice(t)

	_, err := h.run(t, "", nil, "profile", "delete")
	require.ErrorContains(t, err, "--yes")

	out, err := h.run(t, "", nil, "profile", "delete", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "account deleted")
	assert.True(t, h.stored(t).Empty())
}

func TestServerUnreachable(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "", []string{"secret123"}, "--server", "http://127.0.0.1:1", "login", "--email", "a@example.com")
	require.ErrorContains(t, err, "cannot reach server")
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(context.Background(), envconfig.MapLookuper(nil))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.ServerURL)
	assert.Equal(t, "warn", cfg.LogLevel)

	_, err = LoadConfig(context.Background(), envconfig.MapLookuper(map[string]string{"NOTEBOXCTL_TIMEOUT": "0s"}))
	assert.Error(t, err)
}
