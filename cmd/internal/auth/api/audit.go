package authapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEvent is one row of the auth audit trail.
type AuditEvent struct {
	Action    string
	UserID    string
	IP        net.IP
	UserAgent string
	Meta      map[string]any
}

// Auditor records auth events. Implementations must not fail the request.
type Auditor interface {
	Record(ctx context.Context, ev AuditEvent)
}

// NopAuditor drops every event.
type NopAuditor struct{}

func (NopAuditor) Record(context.Context, AuditEvent) {}

// PostgresAuditor writes events into audit_log.
type PostgresAuditor struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgresAuditor returns an Auditor backed by pool.
func NewPostgresAuditor(pool *pgxpool.Pool, log *slog.Logger) *PostgresAuditor {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresAuditor{pool: pool, log: log}
}

func (a *PostgresAuditor) Record(ctx context.Context, ev AuditEvent) {
	if a == nil || a.pool == nil {
		return
	}
	action := strings.TrimSpace(ev.Action)
	if action == "" {
		return
	}

	var ipVal any
	if ev.IP != nil {
		ipVal = ev.IP.String()
	}

	var metaVal *string
	if len(ev.Meta) > 0 {
		if b, err := json.Marshal(ev.Meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	_, err := a.pool.Exec(ctx, `
		INSERT INTO audit_log (user_id, action, created_at, ip, user_agent, meta)
		VALUES ($1, $2, now(), $3, $4, $5::jsonb)
	`, trimOrNil(ev.UserID), action, ipVal, trimOrNil(ev.UserAgent), metaVal)
	if err != nil {
		a.log.Error("auth.audit.insert.fail", "err", err, "action", action)
	}
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}

func (h *Handler) audit(ctx context.Context, action, userID string, ip net.IP, ua string, meta map[string]any) {
	h.auditor.Record(ctx, AuditEvent{
		Action:    action,
		UserID:    userID,
		IP:        ip,
		UserAgent: ua,
		Meta:      meta,
	})
}
