// Package ratelimit throttles write endpoints per principal using fixed windows.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atelier-market/api/internal/platform/httpx"
)

// Limiter reports whether one more request for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Memory is a process-local fixed window limiter.
type Memory struct {
	limit  int
	window time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	store  map[string]entry
}

type entry struct {
	count int
	reset time.Time
}

// NewMemory returns nil when limit or window is not positive; a nil limiter allows everything.
func NewMemory(limit int, window time.Duration, clock func() time.Time) *Memory {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &Memory{limit: limit, window: window, clock: clock, store: make(map[string]entry)}
}

func (l *Memory) Allow(_ context.Context, key string) (bool, error) {
	if l == nil {
		return true, nil
	}
	key = normaliseKey(key)
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.store[key]
	if !ok || !now.Before(current.reset) {
		for k, e := range l.store {
			if !now.Before(e.reset) {
				delete(l.store, k)
			}
		}
		l.store[key] = entry{count: 1, reset: now.Add(l.window)}
		return true, nil
	}
	if current.count >= l.limit {
		return false, nil
	}
	current.count++
	l.store[key] = current
	return true, nil
}

// Redis shares the window across instances with INCR and EXPIRE.
type Redis struct {
	client redis.Cmdable
	limit  int
	window time.Duration
	prefix string
	clock  func() time.Time
}

// NewRedis builds a limiter over client. Keys are bucketed by window start.
func NewRedis(client redis.Cmdable, limit int, window time.Duration) *Redis {
	if client == nil || limit <= 0 || window <= 0 {
		return nil
	}
	return &Redis{client: client, limit: limit, window: window, prefix: "ratelimit:", clock: time.Now}
}

func (l *Redis) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil {
		return true, nil
	}
	bucket := l.clock().UnixNano() / int64(l.window)
	redisKey := l.prefix + normaliseKey(key) + ":" + strconv.FormatInt(bucket, 10)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, l.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis incr: %w", err)
	}
	return incr.Val() <= int64(l.limit), nil
}

func normaliseKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "anonymous"
	}
	return key
}

// Middleware rejects requests over the limit with 429. keyFn derives the bucket key from the
// request; limiter errors fail open.
func Middleware(limiter Limiter, keyFn func(*http.Request) string, onError func(*http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := limiter.Allow(r.Context(), keyFn(r))
			if err != nil {
				if onError != nil {
					onError(r, err)
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
