package authapi

import (
	"context"
	"errors"
	"net/http"

	"notebox/cmd/internal/auth/session"
	v1 "notebox/shared/contracts/auth/v1"
)

type subjectKey struct{}

// SubjectFromContext returns the token subject RequireAuth stored on ctx.
func SubjectFromContext(ctx context.Context) (session.Subject, bool) {
	sub, ok := ctx.Value(subjectKey{}).(session.Subject)
	return sub, ok
}

// RequireAuth rejects requests without a valid, unexpired bearer token.
//
// Missing token: 401 NO_TOKEN. Expired: 401 TOKEN_EXPIRED. Anything else: 403 INVALID_TOKEN.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			h.metrics.observe("authorize", v1.CodeNoToken)
			WriteError(w, http.StatusUnauthorized, v1.CodeNoToken, "missing bearer token")
			return
		}

		sub, err := h.sessions.Authenticate(raw)
		if err != nil {
			if errors.Is(err, session.ErrExpired) {
				h.metrics.observe("authorize", v1.CodeTokenExpired)
				WriteError(w, http.StatusUnauthorized, v1.CodeTokenExpired, "token expired")
				return
			}
			h.metrics.observe("authorize", v1.CodeInvalidToken)
			WriteError(w, http.StatusForbidden, v1.CodeInvalidToken, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey{}, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
