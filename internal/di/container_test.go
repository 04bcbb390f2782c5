package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/platform/config"
	"github.com/atelier-market/api/internal/platform/requestctx"
)

func memoryConfig() config.Config {
	return config.Config{
		Store: config.StoreMemory,
		Auth: config.AuthConfig{
			TokenSecret: "container-test-secret-0123456789abcdef",
			TokenTTL:    time.Hour,
			Issuer:      "container-test",
			BcryptCost:  4,
		},
		Returns:     config.ReturnsConfig{Window: 14 * 24 * time.Hour},
		Reviews:     config.ReviewsConfig{AutoApprove: true},
		Events:      config.EventsConfig{Backend: config.EventsNone},
		Redis:       config.RedisConfig{WritesPerMinute: 2},
		Idempotency: config.IdempotencyConfig{TTL: time.Hour},
	}
}

func TestNewContainerMemoryStore(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(ctx, memoryConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })

	assert.NotNil(t, c.Services.Auth)
	assert.NotNil(t, c.Services.Products)
	assert.NotNil(t, c.Services.Carts)
	assert.NotNil(t, c.Services.Orders)
	assert.NotNil(t, c.Services.Returns)
	assert.NotNil(t, c.Services.Reviews)
	assert.NotNil(t, c.Services.Ratings)
	assert.NotNil(t, c.Authn)
	assert.Nil(t, c.OIDC)
	assert.Empty(t, c.InternalMiddlewares())

	report := c.Readiness.Check(ctx)
	assert.Equal(t, domain.ReadinessOK, report.Status)
}

func TestNewContainerRejectsShortSecret(t *testing.T) {
	cfg := memoryConfig()
	cfg.Auth.TokenSecret = "short"
	_, err := NewContainer(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token issuer")
}

func TestCreateGuardLimitsPerPrincipal(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(ctx, memoryConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })

	calls := 0
	guarded := c.CreateGuard()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))
	send := func(shopperID, key string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{}`))
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		req = req.WithContext(requestctx.WithPrincipal(req.Context(), domain.Principal{Kind: domain.PrincipalShopper, ID: shopperID}))
		rr := httptest.NewRecorder()
		guarded.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusCreated, send("s1", "k1"))
	assert.Equal(t, http.StatusCreated, send("s1", "k1"))
	assert.Equal(t, 1, calls, "retry with the same key is replayed")

	assert.Equal(t, http.StatusTooManyRequests, send("s1", ""))
	assert.Equal(t, http.StatusCreated, send("s2", ""))
	assert.Equal(t, 2, calls)
}
