package memory

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/repositories"
)

func TestOrderPlaceIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	require.NoError(t, reg.Products().Create(ctx, domain.Product{ID: "p1", StockQuantity: 5}))
	require.NoError(t, reg.Products().Create(ctx, domain.Product{ID: "p2", StockQuantity: 1}))

	err := reg.Orders().Place(ctx, domain.Order{ID: "o1", OrderNumber: "N1"}, []repositories.StockLine{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 3},
	})
	stockErr, ok := repositories.AsInsufficientStock(err)
	require.True(t, ok)
	assert.Equal(t, "p2", stockErr.ProductID)
	assert.Equal(t, 1, stockErr.Available)

	p1, err := reg.Products().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, p1.StockQuantity, "no partial decrement")

	_, err = reg.Orders().Get(ctx, "o1")
	assert.True(t, repositories.IsNotFound(err))

	require.NoError(t, reg.Orders().Place(ctx, domain.Order{ID: "o2", OrderNumber: "N2"}, []repositories.StockLine{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p1", Quantity: 1},
	}))
	p1, _ = reg.Products().Get(ctx, "p1")
	assert.Equal(t, 2, p1.StockQuantity)

	err = reg.Orders().Place(ctx, domain.Order{ID: "o3", OrderNumber: "N2"}, nil)
	assert.True(t, repositories.IsConflict(err))
}

func TestOrderMutateRestocks(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	require.NoError(t, reg.Products().Create(ctx, domain.Product{ID: "p1", StockQuantity: 4}))
	require.NoError(t, reg.Orders().Place(ctx, domain.Order{ID: "o1", OrderNumber: "N1", Status: domain.OrderStatusPending},
		[]repositories.StockLine{{ProductID: "p1", Quantity: 3}}))

	updated, err := reg.Orders().Mutate(ctx, "o1", func(order *domain.Order) ([]repositories.StockLine, error) {
		order.Status = domain.OrderStatusCancelled
		return []repositories.StockLine{{ProductID: "p1", Quantity: 3}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, updated.Status)

	product, _ := reg.Products().Get(ctx, "p1")
	assert.Equal(t, 4, product.StockQuantity)
}

func TestOrderListPagination(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		order := domain.Order{ID: id, OrderNumber: id, ShopperID: "s1", CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, reg.Orders().Place(ctx, order, nil))
	}
	require.NoError(t, reg.Orders().Place(ctx, domain.Order{ID: "x", OrderNumber: "x", ShopperID: "s2"}, nil))

	page, err := reg.Orders().List(ctx, repositories.OrderListFilter{ShopperID: "s1", Pagination: domain.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "c", page.Items[0].ID)
	assert.NotEmpty(t, page.NextPageToken)

	page, err = reg.Orders().List(ctx, repositories.OrderListFilter{ShopperID: "s1", Pagination: domain.Pagination{PageSize: 2, PageToken: page.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "a", page.Items[0].ID)
	assert.Empty(t, page.NextPageToken)
}

func TestReviewTripleUniqueness(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	review := domain.Review{ID: "r1", ShopperID: "s", ProductID: "p", OrderID: "o", Rating: 4, IsApproved: true}
	require.NoError(t, reg.Reviews().Create(ctx, review))

	review.ID = "r2"
	assert.True(t, repositories.IsConflict(reg.Reviews().Create(ctx, review)))

	require.NoError(t, reg.Reviews().Delete(ctx, "r1"))
	require.NoError(t, reg.Reviews().Create(ctx, review))

	page, err := reg.Reviews().ListApproved(ctx, repositories.ReviewListFilter{ProductID: "p", Page: math.MaxInt, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 1, page.Total)

	ratings, err := reg.Reviews().ApprovedRatings(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []int{4}, ratings)
}

func TestReturnOnePerOrder(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	require.NoError(t, reg.Returns().Create(ctx, domain.Return{ID: "ret_o1", OrderID: "o1"}))
	err := reg.Returns().Create(ctx, domain.Return{ID: "ret_other", OrderID: "o1"})
	assert.True(t, repositories.IsConflict(err))

	found, err := reg.Returns().FindByOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "ret_o1", found.ID)
}
