package services

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/atelier-market/api/internal/domain"
)

func returnCommand(m *marketplace, orderID string) CreateReturnCommand {
	return CreateReturnCommand{
		ShopperID: m.shopper.ID,
		OrderID:   orderID,
		Reason:    domain.ReturnReasonDefective,
		Items:     []domain.ReturnItem{{ProductID: m.product.ID, Quantity: 1, Price: 10}},
	}
}

func TestCreateReturnPreconditionOrder(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	order := m.placeOrder(t, 1)

	_, err := m.returns.CreateReturn(ctx, returnCommand(m, "ord_missing"))
	assert.ErrorIs(t, err, ErrNotFound)

	stranger := returnCommand(m, order.ID)
	stranger.ShopperID = "shp_2"
	_, err = m.returns.CreateReturn(ctx, stranger)
	assert.ErrorIs(t, err, ErrForbidden, "ownership is checked before status")

	_, err = m.returns.CreateReturn(ctx, returnCommand(m, order.ID))
	assert.ErrorIs(t, err, ErrInvalidState)

	m.deliver(t, order.ID)
	m.clock.Advance(15 * 24 * time.Hour)
	_, err = m.returns.CreateReturn(ctx, returnCommand(m, order.ID))
	require.ErrorIs(t, err, ErrWindowExpired)
	var windowErr *ReturnWindowError
	require.True(t, errors.As(err, &windowErr))
	assert.Equal(t, 14, windowErr.WindowDays())
}

func TestCreateReturnWithinWindowAndDuplicate(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	order := m.placeOrder(t, 2)
	m.deliver(t, order.ID)
	m.clock.Advance(14 * 24 * time.Hour)

	cmd := returnCommand(m, order.ID)
	cmd.Items = []domain.ReturnItem{{ProductID: m.product.ID, Quantity: 2, Price: 7}}
	ret, err := m.returns.CreateReturn(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, ReturnIDForOrder(order.ID), ret.ID)
	assert.EqualValues(t, 14, ret.RefundAmount, "refund follows the submitted prices")
	assert.Equal(t, m.shop.ID, ret.ShopID)

	_, err = m.returns.CreateReturn(ctx, returnCommand(m, order.ID))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCreateReturnValidatesInput(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()

	cmd := returnCommand(m, "ord_any")
	cmd.Reason = "bored"
	_, err := m.returns.CreateReturn(ctx, cmd)
	assert.ErrorIs(t, err, ErrValidation)

	cmd = returnCommand(m, "ord_any")
	cmd.Items = nil
	_, err = m.returns.CreateReturn(ctx, cmd)
	assert.ErrorIs(t, err, ErrValidation)

	cmd = returnCommand(m, "ord_any")
	cmd.Items[0].Quantity = 0
	_, err = m.returns.CreateReturn(ctx, cmd)
	assert.ErrorIs(t, err, ErrValidation)

	cmd = returnCommand(m, "ord_any")
	cmd.Items[0].Price = domain.MaxReturnItemPrice + 1
	_, err = m.returns.CreateReturn(ctx, cmd)
	assert.ErrorIs(t, err, ErrValidation)

	cmd = returnCommand(m, "ord_any")
	cmd.Items[0].Quantity = math.MaxInt
	cmd.Items[0].Price = domain.MaxReturnItemPrice
	_, err = m.returns.CreateReturn(ctx, cmd)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestReturnStatusMachine(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	order := m.placeOrder(t, 1)
	m.deliver(t, order.ID)
	ret, err := m.returns.CreateReturn(ctx, returnCommand(m, order.ID))
	require.NoError(t, err)

	_, err = m.returns.UpdateStatus(ctx, UpdateReturnStatusCommand{ShopID: m.shop.ID, ReturnID: ret.ID, Status: domain.ReturnStatusCompleted})
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = m.returns.UpdateStatus(ctx, UpdateReturnStatusCommand{ShopID: "shop_2", ReturnID: ret.ID, Status: domain.ReturnStatusApproved})
	assert.ErrorIs(t, err, ErrForbidden)

	rejected, err := m.returns.UpdateStatus(ctx, UpdateReturnStatusCommand{
		ShopID: m.shop.ID, ReturnID: ret.ID, Status: domain.ReturnStatusRejected, AdminNotes: "<b>worn</b>",
	})
	require.NoError(t, err)
	assert.NotNil(t, rejected.RejectedAt)
	assert.Equal(t, "worn", rejected.AdminNotes)

	reopened, err := m.returns.UpdateStatus(ctx, UpdateReturnStatusCommand{ShopID: m.shop.ID, ReturnID: ret.ID, Status: domain.ReturnStatusApproved, Force: true})
	require.NoError(t, err)
	assert.NotNil(t, reopened.ApprovedAt)
	assert.Contains(t, m.logger.Events(), "return.status.forced")
	assert.Len(t, reopened.StatusHistory, 3)
}

func TestReturnVisibility(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	order := m.placeOrder(t, 1)
	m.deliver(t, order.ID)
	ret, err := m.returns.CreateReturn(ctx, returnCommand(m, order.ID))
	require.NoError(t, err)

	_, err = m.returns.GetReturn(ctx, m.shop, ret.ID)
	require.NoError(t, err)
	_, err = m.returns.GetReturn(ctx, domain.Principal{Kind: domain.PrincipalShopper, ID: "shp_2"}, ret.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	page, err := m.returns.ListShopReturns(ctx, m.shop, m.shop.ID, ListQuery[ReturnStatus]{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)

	_, err = m.returns.ListShopReturns(ctx, m.shop, "shop_2", ListQuery[ReturnStatus]{})
	assert.ErrorIs(t, err, ErrForbidden)

	page, err = m.returns.ListShopperReturns(ctx, m.shopper.ID, ListQuery[ReturnStatus]{Status: []ReturnStatus{domain.ReturnStatusApproved}})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}
