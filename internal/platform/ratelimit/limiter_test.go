package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFixedWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewMemory(2, time.Minute, func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "shopper:1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := limiter.Allow(ctx, "shopper:1")
	assert.False(t, ok, "third request in window is rejected")

	ok, _ = limiter.Allow(ctx, "shopper:2")
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Minute)
	ok, _ = limiter.Allow(ctx, "shopper:1")
	assert.True(t, ok, "window resets")
}

func TestNilLimiterAllows(t *testing.T) {
	var limiter *Memory
	ok, err := limiter.Allow(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, NewMemory(0, time.Minute, nil))
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	keyFn := func(*http.Request) string { return "k" }

	handler := Middleware(NewMemory(1, time.Minute, nil), keyFn, nil)(next)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate_limited")

	var reported error
	failOpen := Middleware(failingLimiter{}, keyFn, func(_ *http.Request, err error) { reported = err })(next)
	rec = httptest.NewRecorder()
	failOpen.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Error(t, reported)
}

func TestRedisLimiter(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewRedis(client, 2, time.Minute)
	limiter.prefix = "ratelimit-test:" + t.Name() + ":" + time.Now().Format(time.RFC3339Nano) + ":"
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "shopper:1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := limiter.Allow(ctx, "shopper:1")
	require.NoError(t, err)
	assert.False(t, ok)
}
