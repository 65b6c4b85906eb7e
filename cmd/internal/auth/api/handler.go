package authapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"notebox/cmd/identity"
	"notebox/cmd/internal/auth/session"
	"notebox/cmd/security/password"
	"notebox/cmd/security/token"
	v1 "notebox/shared/contracts/auth/v1"
)

// Handler wires HTTP auth endpoints to identity/session services.
type Handler struct {
	log *slog.Logger
	cfg Config

	users    identity.Store
	creds    *identity.Credentials
	sessions *session.Service

	limiter LoginLimiter
	auditor Auditor
	metrics *Metrics

	now func() time.Time
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithLoginLimiter overrides the default in-memory login limiter.
func WithLoginLimiter(l LoginLimiter) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.limiter = l
		}
	}
}

// WithAuditor overrides the default no-op auditor.
func WithAuditor(a Auditor) HandlerOption {
	return func(h *Handler) {
		if a != nil {
			h.auditor = a
		}
	}
}

// WithMetrics enables auth counters.
func WithMetrics(m *Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, users identity.Store, creds *identity.Credentials, sessions *session.Service, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	switch {
	case users == nil:
		return nil, errors.New("auth: nil user store")
	case creds == nil:
		return nil, errors.New("auth: nil credentials")
	case sessions == nil:
		return nil, errors.New("auth: nil session service")
	}

	cfg = cfg.normalized()
	h := &Handler{
		log:      log,
		cfg:      cfg,
		users:    users,
		creds:    creds,
		sessions: sessions,
		limiter:  NewMemoryLimiter(cfg.LoginWindow),
		auditor:  NopAuditor{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Mount registers the auth routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Post(v1.PathRegister, h.handleRegister)
	r.Post(v1.PathLogin, h.handleLogin)
	r.Post(v1.PathRefreshToken, h.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Get(v1.PathProfile, h.handleGetProfile)
		r.Put(v1.PathProfile, h.handleUpdateProfile)
		r.Delete(v1.PathProfile, h.handleDeleteProfile)
		r.Post(v1.PathChangePassword, h.handleChangePassword)
	})
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req v1.RegisterRequest
	if err := DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		WriteError(w, http.StatusBadRequest, v1.CodeInvalidJSON, "invalid request body")
		return
	}

	name := identity.NormalizeName(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" || email == "" || req.Password == "" {
		h.metrics.observe("register", v1.CodeMissingFields)
		WriteError(w, http.StatusBadRequest, v1.CodeMissingFields, "name, email and password are required")
		return
	}
	if !identity.ValidEmail(email) {
		h.metrics.observe("register", v1.CodeInvalidEmail)
		WriteError(w, http.StatusBadRequest, v1.CodeInvalidEmail, "invalid email address")
		return
	}

	hash, err := h.creds.Hash(req.Password)
	if err != nil {
		if password.IsPolicyViolation(err) {
			h.metrics.observe("register", v1.CodeWeakPassword)
			WriteError(w, http.StatusBadRequest, v1.CodeWeakPassword, h.policyMessage(err))
			return
		}
		h.log.Error("auth.register.hash.fail", "err", err)
		writeInternal(w)
		return
	}

	ctx := r.Context()
	u, err := h.users.CreateUser(ctx, identity.CreateUserInput{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Now:          h.now(),
	})
	if err != nil {
		if identity.IsConflict(err) {
			h.metrics.observe("register", v1.CodeEmailExists)
			WriteError(w, http.StatusConflict, v1.CodeEmailExists, "email already registered")
			return
		}
		h.log.Error("auth.register.create.fail", "err", err)
		writeInternal(w)
		return
	}

	issued, err := h.sessions.IssueFor(u)
	if err != nil {
		h.log.Error("auth.register.issue.fail", "err", err)
		writeInternal(w)
		return
	}

	h.audit(ctx, "auth.register", u.ID, clientIP(r, h.cfg.TrustProxy), r.UserAgent(), nil)
	h.metrics.observe("register", "ok")
	h.log.Info("auth.register.ok", "user_id", u.ID, "token_fp", token.Fingerprint(issued.Token))
	WriteJSON(w, http.StatusCreated, toSessionResponse(issued))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req v1.LoginRequest
	if err := DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		WriteError(w, http.StatusBadRequest, v1.CodeInvalidJSON, "invalid request body")
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		h.metrics.observe("login", v1.CodeMissingCredentials)
		WriteError(w, http.StatusBadRequest, v1.CodeMissingCredentials, "email and password are required")
		return
	}
	if !identity.ValidEmail(email) {
		h.metrics.observe("login", v1.CodeInvalidEmail)
		WriteError(w, http.StatusBadRequest, v1.CodeInvalidEmail, "invalid email address")
		return
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())
	emailKey, ipKey := loginKeys(email, ip)

	// Throttle before the lookup so blocked callers never reach the hash.
	for _, c := range []struct {
		key string
		max int
	}{
		{ipKey, h.cfg.LoginIPMaxFailures},
		{emailKey, h.cfg.LoginMaxFailures},
	} {
		if c.key == "" {
			continue
		}
		retryAfter, err := h.limiter.Blocked(ctx, c.key, c.max)
		if err != nil {
			h.log.Error("auth.login.throttle.fail", "err", err)
			WriteError(w, http.StatusServiceUnavailable, v1.CodeServerBusy, "please retry later")
			return
		}
		if retryAfter > 0 {
			h.audit(ctx, "auth.login.rate_limited", "", ip, ua, map[string]any{
				"retry_after_s": int64(retryAfter.Seconds()),
			})
			h.metrics.observe("login", v1.CodeTooManyAttempts)
			writeRateLimited(w, retryAfter)
			return
		}
	}

	u, err := h.creds.Authenticate(ctx, h.users, email, req.Password)
	switch {
	case err == nil:
	case identity.IsInvalidCredentials(err):
		h.recordLoginFailure(r, emailKey, ipKey)
		h.audit(ctx, "auth.login.failed", "", ip, ua, map[string]any{"reason": "invalid_credentials"})
		h.metrics.observe("login", v1.CodeInvalidCredentials)
		WriteError(w, http.StatusUnauthorized, v1.CodeInvalidCredentials, "invalid email or password")
		return
	case identity.IsNotActive(err):
		h.audit(ctx, "auth.login.failed", "", ip, ua, map[string]any{"reason": "account_disabled"})
		h.metrics.observe("login", v1.CodeAccountDisabled)
		WriteError(w, http.StatusForbidden, v1.CodeAccountDisabled, "account disabled")
		return
	default:
		h.log.Error("auth.login.lookup.fail", "err", err)
		writeInternal(w)
		return
	}

	if err := h.limiter.Reset(ctx, emailKey); err != nil {
		h.log.Warn("auth.login.throttle_reset.fail", "err", err)
	}

	issued, err := h.sessions.IssueFor(u)
	if err != nil {
		h.log.Error("auth.login.issue.fail", "err", err)
		writeInternal(w)
		return
	}

	h.audit(ctx, "auth.login.success", u.ID, ip, ua, nil)
	h.metrics.observe("login", "ok")
	WriteJSON(w, http.StatusOK, toSessionResponse(issued))
}

func (h *Handler) recordLoginFailure(r *http.Request, keys ...string) {
	for _, k := range keys {
		if k == "" {
			continue
		}
		if err := h.limiter.Fail(r.Context(), k); err != nil {
			h.log.Warn("auth.login.throttle_record.fail", "err", err)
		}
	}
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw := bearerToken(r)
	if raw == "" {
		h.metrics.observe("refresh", v1.CodeNoToken)
		WriteError(w, http.StatusUnauthorized, v1.CodeNoToken, "missing bearer token")
		return
	}

	ctx := r.Context()
	issued, err := h.sessions.Refresh(ctx, raw)
	switch {
	case err == nil:
	case session.IsTokenError(err):
		h.metrics.observe("refresh", v1.CodeInvalidToken)
		WriteError(w, http.StatusUnauthorized, v1.CodeInvalidToken, "invalid token")
		return
	case errors.Is(err, session.ErrUserNotFound):
		h.metrics.observe("refresh", v1.CodeUserNotFound)
		WriteError(w, http.StatusUnauthorized, v1.CodeUserNotFound, "user not found")
		return
	case errors.Is(err, session.ErrAccountDisabled):
		h.metrics.observe("refresh", v1.CodeAccountDisabled)
		WriteError(w, http.StatusForbidden, v1.CodeAccountDisabled, "account disabled")
		return
	default:
		h.log.Error("auth.refresh.fail", "err", err)
		writeInternal(w)
		return
	}

	h.audit(ctx, "auth.refresh.success", issued.User.ID, clientIP(r, h.cfg.TrustProxy), r.UserAgent(), nil)
	h.metrics.observe("refresh", "ok")
	WriteJSON(w, http.StatusOK, toSessionResponse(issued))
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, PublicUser(u))
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req v1.UpdateProfileRequest
	if err := DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		WriteError(w, http.StatusBadRequest, v1.CodeInvalidJSON, "invalid request body")
		return
	}

	name := identity.NormalizeName(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" && email == "" {
		WriteError(w, http.StatusBadRequest, v1.CodeMissingFields, "name or email is required")
		return
	}

	in := identity.UpdateProfileInput{Now: h.now()}
	if name != "" {
		in.Name = &name
	}
	if email != "" {
		if !identity.ValidEmail(email) {
			WriteError(w, http.StatusBadRequest, v1.CodeInvalidEmail, "invalid email address")
			return
		}
		in.Email = &email
	}

	updated, err := h.users.UpdateProfile(r.Context(), u.ID, in)
	switch {
	case err == nil:
	case identity.IsConflict(err):
		WriteError(w, http.StatusConflict, v1.CodeEmailExists, "email already registered")
		return
	case identity.IsNotFound(err):
		WriteError(w, http.StatusNotFound, v1.CodeUserNotFound, "user not found")
		return
	default:
		h.log.Error("auth.profile.update.fail", "err", err, "user_id", u.ID)
		writeInternal(w)
		return
	}

	h.audit(r.Context(), "auth.profile.updated", u.ID, clientIP(r, h.cfg.TrustProxy), r.UserAgent(), nil)
	WriteJSON(w, http.StatusOK, v1.ProfileResponse{Success: true, User: PublicUser(updated)})
}

func (h *Handler) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if err := h.users.DeleteUser(ctx, u.ID); err != nil {
		if identity.IsNotFound(err) {
			WriteError(w, http.StatusNotFound, v1.CodeUserNotFound, "user not found")
			return
		}
		h.log.Error("auth.profile.delete.fail", "err", err, "user_id", u.ID)
		writeInternal(w)
		return
	}

	// The row is gone, so the audit entry carries no user reference.
	h.audit(ctx, "auth.account.deleted", "", clientIP(r, h.cfg.TrustProxy), r.UserAgent(), map[string]any{
		"user_id": u.ID,
	})
	WriteJSON(w, http.StatusOK, v1.SuccessResponse{Success: true})
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req v1.ChangePasswordRequest
	if err := DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		WriteError(w, http.StatusBadRequest, v1.CodeInvalidJSON, "invalid request body")
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		WriteError(w, http.StatusBadRequest, v1.CodeMissingFields, "oldPassword and newPassword are required")
		return
	}

	ctx := r.Context()
	err := h.creds.ChangePassword(ctx, h.users, u.ID, req.OldPassword, req.NewPassword)
	switch {
	case err == nil:
	case identity.IsInvalidCredentials(err):
		WriteError(w, http.StatusUnauthorized, v1.CodeInvalidCredentials, "current password is incorrect")
		return
	case password.IsPolicyViolation(err):
		WriteError(w, http.StatusBadRequest, v1.CodeWeakPassword, h.policyMessage(err))
		return
	case identity.IsNotFound(err):
		WriteError(w, http.StatusNotFound, v1.CodeUserNotFound, "user not found")
		return
	default:
		h.log.Error("auth.password.change.fail", "err", err, "user_id", u.ID)
		writeInternal(w)
		return
	}

	h.audit(ctx, "auth.password.changed", u.ID, clientIP(r, h.cfg.TrustProxy), r.UserAgent(), nil)
	WriteJSON(w, http.StatusOK, v1.SuccessResponse{Success: true})
}

// ---- helpers ----

// currentUser loads the account behind the request's token subject.
// It writes 404 USER_NOT_FOUND or 403 ACCOUNT_DISABLED itself.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (identity.User, bool) {
	sub, ok := SubjectFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, v1.CodeNoToken, "missing bearer token")
		return identity.User{}, false
	}

	u, err := h.users.GetUserByID(r.Context(), sub.ID)
	if err != nil {
		if identity.IsNotFound(err) {
			WriteError(w, http.StatusNotFound, v1.CodeUserNotFound, "user not found")
			return identity.User{}, false
		}
		h.log.Error("auth.user.lookup.fail", "err", err, "user_id", sub.ID)
		writeInternal(w)
		return identity.User{}, false
	}
	if u.Disabled() {
		WriteError(w, http.StatusForbidden, v1.CodeAccountDisabled, "account disabled")
		return identity.User{}, false
	}
	return u, true
}

func (h *Handler) policyMessage(err error) string {
	p := h.creds.Policy()
	switch {
	case errors.Is(err, password.ErrPasswordTooShort):
		return fmt.Sprintf("password must be at least %d characters", p.MinLength)
	case errors.Is(err, password.ErrPasswordTooLong):
		return fmt.Sprintf("password must be at most %d characters", p.MaxLength)
	default:
		return "password is too weak"
	}
}

func loginKeys(email string, ip net.IP) (emailKey, ipKey string) {
	emailKey = "email:" + identity.NormalizeEmail(email)
	if ip != nil {
		ipKey = "ip:" + ip.String()
	}
	return emailKey, ipKey
}
