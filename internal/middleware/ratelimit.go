// Per-IP fixed-window rate limiting for the sign-in endpoints, backed by
// Redis in production so limits hold across replicas.

package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Limiter decides whether one more request identified by key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// rateLimitEntry tracks request counts for a single key within a window.
type rateLimitEntry struct {
	count       int
	windowStart time.Time
}

// MemoryLimiter is an in-process fixed-window limiter. Suitable for a single
// instance or for tests.
type MemoryLimiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*rateLimitEntry
}

// NewMemoryLimiter creates a limiter allowing max requests per window.
func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		max:     max,
		window:  window,
		now:     time.Now,
		entries: make(map[string]*rateLimitEntry),
	}
}

// Allow implements Limiter. Expired entries are pruned lazily on access.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, e := range l.entries {
		if now.Sub(e.windowStart) > 2*l.window {
			delete(l.entries, k)
		}
	}

	entry, ok := l.entries[key]
	if !ok || now.Sub(entry.windowStart) > l.window {
		l.entries[key] = &rateLimitEntry{count: 1, windowStart: now}
		return true, nil
	}

	entry.count++
	return entry.count <= l.max, nil
}

// RedisLimiter is a fixed-window limiter shared across server instances.
// Each window is a Redis counter that expires with the window.
type RedisLimiter struct {
	rdb    *redis.Client
	prefix string
	max    int
	window time.Duration
}

// NewRedisLimiter creates a Redis-backed limiter. prefix namespaces the
// counters, e.g. "ratelimit:signin:".
func NewRedisLimiter(rdb *redis.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, prefix: prefix, max: max, window: window}
}

// incrWindowScript bumps the counter and gives it the window TTL whenever it
// has none, in one atomic step. A counter left without expiry would lock its
// key out for good.
var incrWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := incrWindowScript.Run(ctx, l.rdb, []string{l.prefix + key}, l.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("incrementing rate limit counter: %w", err)
	}
	return count <= int64(l.max), nil
}

// RateLimit returns middleware that limits requests per client IP using the
// given limiter. Returns 429 when exceeded. If the limiter itself fails the
// request is let through; losing the limiter must not lock everyone out.
func RateLimit(limiter Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			allowed, err := limiter.Allow(c.Request().Context(), c.RealIP())
			if err != nil {
				slog.Warn("rate limiter unavailable, allowing request",
					slog.String("path", c.Request().URL.Path),
					slog.Any("error", err),
				)
				return next(c)
			}
			if !allowed {
				return echo.NewHTTPError(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			}
			return next(c)
		}
	}
}
