// Package sessionclient is the HTTP pipeline every notebox API call goes through.
//
// It attaches the stored bearer token, and when a call fails with 401 or 403 it refreshes
// the token once (shared by all concurrent callers), persists the result and replays the
// call. If the refresh fails the stored credentials are cleared and the caller gets the
// original failure.
package sessionclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"

	"notebox/cmd/internal/client/credstore"
	"notebox/cmd/security/token"
	v1 "notebox/shared/contracts/auth/v1"
)

// DefaultTimeout bounds every request, including the shared refresh.
const DefaultTimeout = 30 * time.Second

const maxErrorBody = 64 << 10

// Credentials is the persisted session the client reads and updates.
type Credentials interface {
	Load(ctx context.Context) credstore.Record
	Save(ctx context.Context, token string, user v1.User) error
	Clear(ctx context.Context)
}

// Observer is told about refresh outcomes. Calls are made without any client lock held,
// but before the shared refresh completes: an Observer must not start a request or a
// refresh on the calling goroutine.
type Observer interface {
	SessionRefreshed(user v1.User)
	SessionEnded(err error)
}

// Client is safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *http.Client
	creds   Credentials
	log     *slog.Logger
	timeout time.Duration

	refreshes singleflight.Group

	mu       sync.RWMutex
	observer Observer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying client. Its Timeout is overridden by WithTimeout
// or DefaultTimeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithObserver sets the refresh observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// New returns a client for the API at baseURL.
func New(baseURL string, creds Credentials, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("sessionclient: base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("sessionclient: base url must be http or https, got %q", baseURL)
	}
	if creds == nil {
		return nil, errors.New("sessionclient: nil credentials")
	}

	c := &Client{
		base:    u,
		creds:   creds,
		log:     slog.Default(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.http == nil {
		c.http = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	} else {
		hc := *c.http
		c.http = &hc
	}
	c.http.Timeout = c.timeout
	return c, nil
}

// SetObserver replaces the refresh observer. The controller is usually built after the
// client, so it registers itself here.
func (c *Client) SetObserver(o Observer) {
	c.mu.Lock()
	c.observer = o
	c.mu.Unlock()
}

func (c *Client) currentObserver() Observer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.observer
}

// Do sends an authenticated request. body is JSON-encoded when non-nil; a 2xx response
// body is decoded into out when out is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	payload, err := encode(body)
	if err != nil {
		return err
	}

	sent := c.creds.Load(ctx).Token
	err = c.send(ctx, method, path, payload, sent, out)

	var apiErr *Error
	if !errors.As(err, &apiErr) || !sessionFailure(apiErr) {
		return err
	}

	if path == v1.PathRefreshToken {
		c.endSession(ctx, err)
		return err
	}

	// Someone else refreshed while this call was in flight.
	if current := c.creds.Load(ctx).Token; current != "" && current != sent {
		return c.send(ctx, method, path, payload, current, out)
	}

	fresh, rerr := c.Refresh(ctx)
	if rerr != nil {
		apiErr.Refresh = rerr
		return apiErr
	}
	return c.send(ctx, method, path, payload, fresh.Token, out)
}

// DoPublic sends a request without a bearer token and without refresh handling. Used
// for login and register.
func (c *Client) DoPublic(ctx context.Context, method, path string, body, out any) error {
	payload, err := encode(body)
	if err != nil {
		return err
	}
	return c.send(ctx, method, path, payload, "", out)
}

// Refresh exchanges the stored token for a new one. Concurrent callers share a single
// request. On success the new session is stored and the observer notified; on failure
// the store is cleared and the observer told the session ended.
//
// The shared request is not cancelled when one caller gives up; it is bounded by the
// client timeout instead.
func (c *Client) Refresh(ctx context.Context) (credstore.Record, error) {
	ch := c.refreshes.DoChan("refresh", func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.refresh(rctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return credstore.Record{}, res.Err
		}
		return res.Val.(credstore.Record), nil
	case <-ctx.Done():
		return credstore.Record{}, &Error{Kind: KindNetwork, Err: ctx.Err()}
	}
}

func (c *Client) refresh(ctx context.Context) (credstore.Record, error) {
	old := c.creds.Load(ctx).Token
	if old == "" {
		c.endSession(ctx, ErrNoSession)
		return credstore.Record{}, ErrNoSession
	}

	var resp v1.SessionResponse
	if err := c.send(ctx, http.MethodPost, v1.PathRefreshToken, nil, old, &resp); err != nil {
		c.log.Warn("session.refresh.fail", "token_fp", token.Fingerprint(old), "err", err)
		c.endSession(ctx, err)
		return credstore.Record{}, err
	}
	if resp.Token == "" || !resp.User.Complete() {
		err := &Error{Kind: KindServer, Status: http.StatusOK, Message: "incomplete refresh response"}
		c.endSession(ctx, err)
		return credstore.Record{}, err
	}
	if err := c.creds.Save(ctx, resp.Token, resp.User); err != nil {
		c.log.Error("session.refresh.persist_fail", "err", err)
		c.endSession(ctx, err)
		return credstore.Record{}, err
	}

	c.log.Debug("session.refresh.ok", "token_fp", token.Fingerprint(resp.Token))
	if o := c.currentObserver(); o != nil {
		o.SessionRefreshed(resp.User)
	}
	return credstore.Record{Token: resp.Token, User: resp.User}, nil
}

func (c *Client) endSession(ctx context.Context, err error) {
	c.creds.Clear(ctx)
	if o := c.currentObserver(); o != nil {
		o.SessionEnded(err)
	}
}

// sessionFailure reports whether e says the token itself was refused. A wrong password
// on a protected route is a 401 too, but refreshing cannot fix it.
func sessionFailure(e *Error) bool {
	return e.Kind == KindAuth && e.Code != v1.CodeInvalidCredentials
}

func encode(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Message: "encode request body", Err: err}
	}
	return b, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, bearer string, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return &Error{Kind: KindValidation, Message: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Kind: KindServer, Status: resp.StatusCode, Message: "decode response", Err: err}
		}
		return nil
	}
	return responseError(resp)
}

func responseError(resp *http.Response) *Error {
	e := &Error{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	var body v1.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&body); err == nil {
		e.Code = body.Error.Code
		if body.Error.Message != "" {
			e.Message = body.Error.Message
		}
	}
	e.Kind = classify(resp.StatusCode, e.Code)
	return e
}
