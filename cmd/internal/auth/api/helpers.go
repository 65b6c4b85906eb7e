package authapi

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"notebox/cmd/identity"
	"notebox/cmd/internal/auth/session"
	v1 "notebox/shared/contracts/auth/v1"
)

// PublicUser converts an account to its wire profile.
func PublicUser(u identity.User) v1.User {
	return v1.User{ID: u.ID, Name: u.Name, Email: u.Email}
}

func toSessionResponse(issued session.Issued) v1.SessionResponse {
	return v1.SessionResponse{
		Success: true,
		Token:   issued.Token,
		User:    PublicUser(issued.User),
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int64(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	WriteError(w, http.StatusTooManyRequests, v1.CodeTooManyAttempts, "too many login attempts, try again later")
}

func writeInternal(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, v1.CodeInternal, "internal error")
}
