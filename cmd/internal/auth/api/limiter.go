package authapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLimiterUnavailable wraps backend failures of a LoginLimiter.
var ErrLimiterUnavailable = errors.New("login limiter unavailable")

// LoginLimiter counts failed logins per key within a window.
type LoginLimiter interface {
	// Blocked returns a positive retry-after when key has used up max failures.
	Blocked(ctx context.Context, key string, max int) (time.Duration, error)
	// Fail records one failed attempt for key.
	Fail(ctx context.Context, key string) error
	// Reset forgets key.
	Reset(ctx context.Context, key string) error
}

// MemoryLimiter is a per-process sliding-window LoginLimiter. Keys that were never
// touched again are swept at most once per window.
type MemoryLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	now       func() time.Time
	events    map[string][]time.Time
	lastSweep time.Time
}

// NewMemoryLimiter returns a MemoryLimiter over window.
func NewMemoryLimiter(window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		window: window,
		now:    time.Now,
		events: make(map[string][]time.Time),
	}
}

// prune drops events older than the window. Caller holds mu.
func (m *MemoryLimiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-m.window)
	ev := m.events[key]
	i := 0
	for i < len(ev) && !ev[i].After(cutoff) {
		i++
	}
	ev = ev[i:]
	if len(ev) == 0 {
		delete(m.events, key)
		return nil
	}
	m.events[key] = ev
	return ev
}

func (m *MemoryLimiter) Blocked(_ context.Context, key string, max int) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	ev := m.prune(key, now)
	if max <= 0 || len(ev) < max {
		return 0, nil
	}
	return ev[0].Add(m.window).Sub(now), nil
}

func (m *MemoryLimiter) Fail(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)
	ev := m.prune(key, now)
	m.events[key] = append(ev, now)
	return nil
}

// sweep prunes every key once a window has passed since the last sweep. Caller holds mu.
func (m *MemoryLimiter) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < m.window {
		return
	}
	m.lastSweep = now
	for key := range m.events {
		m.prune(key, now)
	}
}

func (m *MemoryLimiter) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.events, key)
	m.mu.Unlock()
	return nil
}

// RedisLimiter is a fixed-window LoginLimiter shared by every server instance.
// Keys are hashed so emails never reach Redis in clear text.
type RedisLimiter struct {
	rdb    redis.UniversalClient
	window time.Duration
	prefix string
}

// NewRedisLimiter returns a RedisLimiter over window.
func NewRedisLimiter(rdb redis.UniversalClient, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, window: window, prefix: "notebox:login:"}
}

func (l *RedisLimiter) key(k string) string {
	sum := sha256.Sum256([]byte(k))
	return l.prefix + hex.EncodeToString(sum[:16])
}

func (l *RedisLimiter) Blocked(ctx context.Context, key string, max int) (time.Duration, error) {
	k := l.key(key)
	val, err := l.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%w: bad counter: %v", ErrLimiterUnavailable, err)
	}
	if max <= 0 || n < max {
		return 0, nil
	}

	ttl, err := l.rdb.TTL(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	if ttl <= 0 {
		ttl = l.window
	}
	return ttl, nil
}

func (l *RedisLimiter) Fail(ctx context.Context, key string) error {
	k := l.key(key)
	// The counter is created with its TTL in the same transaction that bumps it.
	_, err := l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SetNX(ctx, k, 0, l.window)
		p.Incr(ctx, k)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	return nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.rdb.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	return nil
}

var (
	_ LoginLimiter = (*MemoryLimiter)(nil)
	_ LoginLimiter = (*RedisLimiter)(nil)
)
