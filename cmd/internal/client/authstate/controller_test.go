package authstate

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notebox/cmd/internal/client/apiclient"
	"notebox/cmd/internal/client/clienttest"
	"notebox/cmd/internal/client/credstore"
	"notebox/cmd/internal/client/sessionclient"
	v1 "notebox/shared/contracts/auth/v1"
)

type testEnv struct {
	srv   *clienttest.Server
	store *credstore.Store
	api   *apiclient.API
	ctl   *Controller
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	srv := clienttest.NewServer(t)
	return newClientFor(t, srv)
}

func newClientFor(t *testing.T, srv *clienttest.Server) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := credstore.Open(context.Background(), credstore.MemoryPath, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sc, err := sessionclient.New(srv.URL, store, sessionclient.WithLogger(log))
	require.NoError(t, err)
	api := apiclient.New(sc)

	return &testEnv{srv: srv, store: store, api: api, ctl: New(api, store, log)}
}

func (e *testEnv) registerAlice(t *testing.T) v1.SessionResponse {
	t.Helper()
	resp, err := e.ctl.Register(context.Background(), "Alice", "alice@example.com", "secret123")
	require.NoError(t, err)
	return resp
}

func TestInitWithEmptyStore(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, Initializing, env.ctl.Snapshot().Status)
	st := env.ctl.Init(context.Background())
	assert.Equal(t, Unauthenticated, st.Status)
	assert.False(t, st.IsAuthenticated)
	assert.False(t, st.IsLoading)
}

func TestRegisterThenRestore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp := env.registerAlice(t)
	st := env.ctl.Snapshot()
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, "alice@example.com", st.User.Email)
	assert.Equal(t, resp.Token, env.store.Load(ctx).Token)

	// A second controller over the same store restores the session.
	restored := New(env.api, env.store, nil).Init(ctx)
	assert.Equal(t, Authenticated, restored.Status)
	assert.Equal(t, resp.User, restored.User)
}

func TestCheckAuthClearsMalformedToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, tok := range []string{"a.b", "a.b.c.d", "nodots"} {
		require.NoError(t, env.store.Save(ctx, tok, v1.User{ID: "u1", Email: "a@b.c"}))

		ok, u := env.ctl.CheckAuth(ctx)
		assert.False(t, ok, tok)
		assert.Equal(t, v1.User{}, u)
		assert.True(t, env.store.Load(ctx).Empty(), "store cleared for %q", tok)
		assert.Equal(t, Unauthenticated, env.ctl.Snapshot().Status)
	}
}

func TestLoginWrongPasswordStoresNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerAlice(t)
	env.ctl.Logout(ctx)

	_, err := env.ctl.Login(ctx, "alice@example.com", "wrong-password")
	require.Error(t, err)
	e, ok := sessionclient.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, e.Status)
	assert.Equal(t, v1.CodeInvalidCredentials, e.Code)
	assert.Nil(t, e.Refresh)

	assert.True(t, env.store.Load(ctx).Empty())
	st := env.ctl.Snapshot()
	assert.Equal(t, Unauthenticated, st.Status)
	assert.Equal(t, err, st.Err)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerAlice(t)
	env.ctl.Logout(ctx)
	require.True(t, env.store.Load(ctx).Empty())

	resp, err := env.ctl.Login(ctx, "ALICE@example.com", "secret123")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.True(t, env.ctl.Snapshot().IsAuthenticated)
	assert.Equal(t, resp.Token, env.store.Load(ctx).Token)
}

func TestExpiredTokenRefreshesTransparently(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.registerAlice(t)

	var mu sync.Mutex
	var seen []State
	unsubscribe := env.ctl.Subscribe(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	defer unsubscribe()

	env.srv.ExpireTokens()

	u, err := env.api.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.User, u)

	assert.NotEqual(t, first.Token, env.store.Load(ctx).Token)
	assert.True(t, env.ctl.Snapshot().IsAuthenticated)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, Authenticated, seen[len(seen)-1].Status)
}

func TestRefreshFailureLogsOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resp := env.registerAlice(t)

	require.NoError(t, env.srv.Users.DeleteUser(ctx, resp.User.ID))
	env.srv.ExpireTokens()

	_, err := env.api.Profile(ctx)
	e, ok := sessionclient.AsError(err)
	require.True(t, ok)
	assert.Equal(t, v1.CodeTokenExpired, e.Code)
	assert.True(t, sessionclient.HasCode(e.Refresh, v1.CodeUserNotFound))

	st := env.ctl.Snapshot()
	assert.Equal(t, Unauthenticated, st.Status)
	assert.Error(t, st.Err)
	assert.True(t, env.store.Load(ctx).Empty())
}

func TestRefreshAuth(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.registerAlice(t)

	env.srv.Clock.Advance(time.Second)
	assert.True(t, env.ctl.RefreshAuth(ctx))
	assert.NotEqual(t, first.Token, env.store.Load(ctx).Token)
	assert.True(t, env.ctl.Snapshot().IsAuthenticated)
}

func TestRefreshAuthRejectsSuspendedAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resp := env.registerAlice(t)

	_, err := env.srv.Users.SetDisabled(ctx, resp.User.ID, true, time.Now())
	require.NoError(t, err)

	assert.False(t, env.ctl.RefreshAuth(ctx))
	assert.Equal(t, Unauthenticated, env.ctl.Snapshot().Status)
	assert.True(t, env.store.Load(ctx).Empty())
}

func TestSubscriberCanRefreshFromAnotherGoroutine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerAlice(t)

	followUp := make(chan bool, 1)
	var once sync.Once
	unsubscribe := env.ctl.Subscribe(func(st State) {
		if !st.IsAuthenticated {
			return
		}
		once.Do(func() {
			go func() { followUp <- env.ctl.RefreshAuth(ctx) }()
		})
	})
	defer unsubscribe()

	env.srv.ExpireTokens()
	_, err := env.api.Profile(ctx)
	require.NoError(t, err)

	select {
	case ok := <-followUp:
		assert.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("refresh started by a subscriber never finished")
	}
	assert.True(t, env.ctl.Snapshot().IsAuthenticated)
}

func TestRefreshAuthWithoutSession(t *testing.T) {
	env := newTestEnv(t)
	env.ctl.Init(context.Background())

	assert.False(t, env.ctl.RefreshAuth(context.Background()))
	st := env.ctl.Snapshot()
	assert.Equal(t, Unauthenticated, st.Status)
	assert.NoError(t, st.Err)
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerAlice(t)

	u, err := env.ctl.UpdateProfile(ctx, "Alice B", "alice.b@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Alice B", u.Name)

	assert.Equal(t, u, env.ctl.Snapshot().User)
	assert.Equal(t, u, env.store.Load(ctx).User)
}

func TestUpdateUserWithoutSession(t *testing.T) {
	env := newTestEnv(t)
	err := env.ctl.UpdateUser(context.Background(), v1.User{ID: "x", Email: "x@y.z"})
	assert.ErrorIs(t, err, credstore.ErrIncompleteCredentials)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerAlice(t)

	err := env.ctl.ChangePassword(ctx, "wrong-old", "newsecret1")
	assert.True(t, sessionclient.HasCode(err, v1.CodeInvalidCredentials))
	assert.True(t, env.ctl.Snapshot().IsAuthenticated)

	require.NoError(t, env.ctl.ChangePassword(ctx, "secret123", "newsecret1"))
	env.ctl.Logout(ctx)
	_, err = env.ctl.Login(ctx, "alice@example.com", "newsecret1")
	require.NoError(t, err)
}

func TestDeleteAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.registerAlice(t)

	require.NoError(t, env.ctl.DeleteAccount(ctx))
	assert.Equal(t, Unauthenticated, env.ctl.Snapshot().Status)
	assert.True(t, env.store.Load(ctx).Empty())

	_, err := env.ctl.Login(ctx, "alice@example.com", "secret123")
	assert.True(t, sessionclient.HasCode(err, v1.CodeInvalidCredentials))
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var calls int
	unsubscribe := env.ctl.Subscribe(func(State) { calls++ })
	env.ctl.Init(ctx)
	after := calls
	assert.Positive(t, after)

	unsubscribe()
	env.ctl.Logout(ctx)
	assert.Equal(t, after, calls)
}
