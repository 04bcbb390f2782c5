package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/platform/auth"
	"github.com/atelier-market/api/internal/repositories/memory"
)

func newTestAuthService(t *testing.T) (AuthService, *auth.TokenIssuer) {
	t.Helper()
	reg := memory.NewRegistry()
	clock := newTestClock()
	tokens, err := auth.NewTokenIssuer("test-secret-with-enough-entropy-0123", auth.WithTokenClock(clock.Now), auth.WithTokenTTL(time.Hour))
	require.NoError(t, err)
	svc, err := NewAuthService(AuthServiceDeps{
		Shoppers: reg.Shoppers(), Shops: reg.Shops(), Tokens: tokens, Hasher: auth.NewHasher(4), Clock: clock.Now,
	})
	require.NoError(t, err)
	return svc, tokens
}

func TestRegisterAndLoginShopper(t *testing.T) {
	svc, tokens := newTestAuthService(t)
	ctx := context.Background()

	registered, err := svc.RegisterShopper(ctx, RegisterCommand{Email: " Ada@Example.com ", Password: "correct horse", Name: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, domain.PrincipalShopper, registered.Principal.Kind)
	assert.Equal(t, "ada@example.com", registered.Principal.Email)
	assert.Equal(t, domain.RoleShopper, registered.Principal.Role)

	claims, err := tokens.Verify(registered.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.Principal.ID, claims.Subject)

	_, err = svc.RegisterShopper(ctx, RegisterCommand{Email: "ada@example.com", Password: "another pass", Name: "Ada"})
	assert.ErrorIs(t, err, ErrConflict)

	result, err := svc.LoginShopper(ctx, LoginCommand{Email: "ADA@example.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, registered.Principal.ID, result.Principal.ID)

	_, err = svc.LoginShopper(ctx, LoginCommand{Email: "ada@example.com", Password: "wrong horse"})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = svc.LoginShopper(ctx, LoginCommand{Email: "nobody@example.com", Password: "correct horse"})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestShopAndShopperEmailsAreIndependent(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.RegisterShopper(ctx, RegisterCommand{Email: "owner@example.com", Password: "password1", Name: "Owner"})
	require.NoError(t, err)
	shop, err := svc.RegisterShop(ctx, RegisterCommand{Email: "owner@example.com", Password: "password2", Name: "Owner Studio"})
	require.NoError(t, err)
	assert.Equal(t, domain.PrincipalShop, shop.Principal.Kind)

	_, err = svc.LoginShop(ctx, LoginCommand{Email: "owner@example.com", Password: "password1"})
	assert.ErrorIs(t, err, ErrUnauthenticated, "shopper credentials do not open the shop")

	principal, err := svc.LookupShop(ctx, shop.Principal.ID)
	require.NoError(t, err)
	assert.Equal(t, "Owner Studio", principal.Name)

	_, err = svc.LookupShopper(ctx, shop.Principal.ID)
	assert.ErrorIs(t, err, auth.ErrPrincipalNotFound)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.RegisterShopper(ctx, RegisterCommand{Email: "not-an-email", Password: "password1", Name: "Ada"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.RegisterShopper(ctx, RegisterCommand{Email: "ada@example.com", Password: "short", Name: "Ada"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.RegisterShopper(ctx, RegisterCommand{Email: "ada@example.com", Password: strings.Repeat("p", 80), Name: "Ada"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.NotContains(t, err.Error(), "bcrypt")
	_, err = svc.RegisterShop(ctx, RegisterCommand{Email: "shop@example.com", Password: "password1"})
	assert.ErrorIs(t, err, ErrValidation)
}
