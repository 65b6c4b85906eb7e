// Package authstate holds the client's view of the current session.
//
// A Controller is built once, injected where needed, and kept in sync with the session
// client: it registers itself as the client's observer, so a silent refresh updates the
// cached user and a failed refresh logs the device out.
package authstate

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"notebox/cmd/internal/client/apiclient"
	"notebox/cmd/internal/client/credstore"
	"notebox/cmd/internal/client/sessionclient"
	v1 "notebox/shared/contracts/auth/v1"
)

// Status is the coarse session status. Only these three values are reachable.
type Status int

const (
	Initializing Status = iota
	Authenticated
	Unauthenticated
)

func (s Status) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// State is an immutable snapshot handed to callers and subscribers.
type State struct {
	Status          Status
	IsAuthenticated bool
	User            v1.User
	IsLoading       bool
	Err             error
}

// Credentials is the local store the controller restores from and writes to.
type Credentials interface {
	Load(ctx context.Context) credstore.Record
	Save(ctx context.Context, token string, user v1.User) error
	Clear(ctx context.Context)
	ValidateStructure(ctx context.Context, token string) bool
}

// Controller is safe for concurrent use. Subscribers are called outside the lock, in
// registration order.
type Controller struct {
	api   *apiclient.API
	creds Credentials
	log   *slog.Logger

	mu     sync.Mutex
	state  State
	subs   map[int]func(State)
	nextID int
}

// New builds a controller over api and registers it as the session client's observer.
func New(api *apiclient.API, creds Credentials, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		api:   api,
		creds: creds,
		log:   log,
		state: State{Status: Initializing, IsLoading: true},
		subs:  make(map[int]func(State)),
	}
	api.Session().SetObserver(c)
	return c
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for every state change and returns a func that removes it.
//
// fn may run inside a token refresh shared by every caller. It must not call back into
// the session client (RefreshAuth, UpdateProfile, API calls) on the same goroutine;
// hand such work to another goroutine.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Controller) set(next State) {
	next.IsAuthenticated = next.Status == Authenticated
	if !next.IsAuthenticated {
		next.User = v1.User{}
	}

	c.mu.Lock()
	c.state = next
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	fns := make([]func(State), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, c.subs[id])
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
}

func (c *Controller) setLoading() {
	c.mu.Lock()
	st := c.state
	c.mu.Unlock()
	st.IsLoading = true
	st.Err = nil
	c.set(st)
}

// Init restores the session from the local store. It does not touch the network.
func (c *Controller) Init(ctx context.Context) State {
	c.set(State{Status: Initializing, IsLoading: true})
	c.CheckAuth(ctx)
	return c.Snapshot()
}

// CheckAuth reports whether a structurally valid session is stored and syncs the state
// with it. A malformed token clears the store.
func (c *Controller) CheckAuth(ctx context.Context) (bool, v1.User) {
	rec := c.creds.Load(ctx)
	if rec.Empty() || !c.creds.ValidateStructure(ctx, rec.Token) {
		c.set(State{Status: Unauthenticated})
		return false, v1.User{}
	}
	c.set(State{Status: Authenticated, User: rec.User})
	return true, rec.User
}

// Login authenticates and stores the new session. A failed login leaves nothing stored.
func (c *Controller) Login(ctx context.Context, email, password string) (v1.SessionResponse, error) {
	c.setLoading()
	resp, err := c.api.Login(ctx, v1.LoginRequest{Email: email, Password: password})
	return resp, c.establish(ctx, resp, err)
}

// Register creates the account and stores the new session.
func (c *Controller) Register(ctx context.Context, name, email, password string) (v1.SessionResponse, error) {
	c.setLoading()
	resp, err := c.api.Register(ctx, v1.RegisterRequest{Name: name, Email: email, Password: password})
	return resp, c.establish(ctx, resp, err)
}

func (c *Controller) establish(ctx context.Context, resp v1.SessionResponse, err error) error {
	if err == nil {
		err = c.creds.Save(ctx, resp.Token, resp.User)
	}
	if err != nil {
		prev := c.Snapshot()
		c.set(State{Status: settled(prev.Status), User: prev.User, Err: err})
		return err
	}
	c.set(State{Status: Authenticated, User: resp.User})
	return nil
}

// settled maps Initializing to Unauthenticated so a failed call never leaves the
// controller stuck before restore.
func settled(s Status) Status {
	if s == Initializing {
		return Unauthenticated
	}
	return s
}

// Logout clears the local session. There is no server-side session to revoke.
func (c *Controller) Logout(ctx context.Context) {
	c.creds.Clear(ctx)
	c.set(State{Status: Unauthenticated})
}

// RefreshAuth forces a token refresh. The outcome reaches the state through the observer
// callbacks.
func (c *Controller) RefreshAuth(ctx context.Context) bool {
	_, err := c.api.Session().Refresh(ctx)
	if err != nil {
		c.log.Debug("auth.refresh.fail", "err", err)
		return false
	}
	return true
}

// UpdateUser replaces the cached user and persists it next to the current token.
func (c *Controller) UpdateUser(ctx context.Context, u v1.User) error {
	rec := c.creds.Load(ctx)
	if rec.Empty() {
		return credstore.ErrIncompleteCredentials
	}
	if err := c.creds.Save(ctx, rec.Token, u); err != nil {
		return err
	}
	c.set(State{Status: Authenticated, User: u})
	return nil
}

// UpdateProfile changes name and email on the server and caches the result.
func (c *Controller) UpdateProfile(ctx context.Context, name, email string) (v1.User, error) {
	u, err := c.api.UpdateProfile(ctx, v1.UpdateProfileRequest{Name: name, Email: email})
	if err != nil {
		return v1.User{}, err
	}
	return u, c.UpdateUser(ctx, u)
}

// ChangePassword changes the password. The session stays valid.
func (c *Controller) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	return c.api.ChangePassword(ctx, v1.ChangePasswordRequest{OldPassword: oldPassword, NewPassword: newPassword})
}

// DeleteAccount deletes the account and logs out.
func (c *Controller) DeleteAccount(ctx context.Context) error {
	if err := c.api.DeleteAccount(ctx); err != nil {
		return err
	}
	c.Logout(ctx)
	return nil
}

// SessionRefreshed implements sessionclient.Observer.
func (c *Controller) SessionRefreshed(u v1.User) {
	c.set(State{Status: Authenticated, User: u})
}

// SessionEnded implements sessionclient.Observer.
func (c *Controller) SessionEnded(err error) {
	if errors.Is(err, sessionclient.ErrNoSession) {
		err = nil
	}
	c.set(State{Status: Unauthenticated, Err: err})
}

var _ sessionclient.Observer = (*Controller)(nil)
