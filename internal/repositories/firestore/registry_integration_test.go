package firestore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/platform/config"
	pfirestore "github.com/atelier-market/api/internal/platform/firestore"
	"github.com/atelier-market/api/internal/repositories"
)

func emulatorRegistry(t *testing.T) *Registry {
	t.Helper()
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	provider := pfirestore.NewProvider(config.FirestoreConfig{ProjectID: "test-project", EmulatorHost: host})
	reg, err := NewRegistry(provider)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close(context.Background()) })
	return reg
}

func TestPlaceOrderDecrementsStockAtomically(t *testing.T) {
	reg := emulatorRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	suffix := ulid.Make().String()
	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, reg.Products().Create(ctx, domain.Product{ID: "p1_" + suffix, ShopID: "shop", StockQuantity: 5, Active: true, CreatedAt: now}))
	require.NoError(t, reg.Products().Create(ctx, domain.Product{ID: "p2_" + suffix, ShopID: "shop", StockQuantity: 1, Active: true, CreatedAt: now}))

	order := domain.Order{ID: "o1_" + suffix, OrderNumber: "N1-" + suffix, ShopperID: "s_" + suffix, Status: domain.OrderStatusPending, CreatedAt: now}
	err := reg.Orders().Place(ctx, order, []repositories.StockLine{{ProductID: "p1_" + suffix, Quantity: 2}, {ProductID: "p2_" + suffix, Quantity: 2}})
	_, short := repositories.AsInsufficientStock(err)
	require.True(t, short, "expected insufficient stock, got %v", err)

	p1, err := reg.Products().Get(ctx, "p1_"+suffix)
	require.NoError(t, err)
	assert.Equal(t, 5, p1.StockQuantity)

	require.NoError(t, reg.Orders().Place(ctx, order, []repositories.StockLine{{ProductID: "p1_" + suffix, Quantity: 2}}))
	p1, _ = reg.Products().Get(ctx, "p1_"+suffix)
	assert.Equal(t, 3, p1.StockQuantity)

	dup := order
	dup.ID = "o2_" + suffix
	assert.True(t, repositories.IsConflict(reg.Orders().Place(ctx, dup, nil)), "order number is unique")

	cancelled, err := reg.Orders().Mutate(ctx, order.ID, func(o *domain.Order) ([]repositories.StockLine, error) {
		o.Status = domain.OrderStatusCancelled
		return []repositories.StockLine{{ProductID: "p1_" + suffix, Quantity: 2}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	p1, _ = reg.Products().Get(ctx, "p1_"+suffix)
	assert.Equal(t, 5, p1.StockQuantity)
}

func TestReviewTripleReservedInFirestore(t *testing.T) {
	reg := emulatorRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	suffix := ulid.Make().String()
	review := domain.Review{ID: "r1_" + suffix, ShopperID: "s", ProductID: "p_" + suffix, OrderID: "o", Rating: 4, IsApproved: true, CreatedAt: time.Now().UTC()}
	require.NoError(t, reg.Reviews().Create(ctx, review))
	review.ID = "r2_" + suffix
	assert.True(t, repositories.IsConflict(reg.Reviews().Create(ctx, review)))

	ratings, err := reg.Reviews().ApprovedRatings(ctx, "p_"+suffix)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, ratings)

	require.NoError(t, reg.Reviews().Delete(ctx, "r1_"+suffix))
	require.NoError(t, reg.Reviews().Create(ctx, review))
}
