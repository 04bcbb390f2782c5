package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/platform/events"
)

func TestOrderLifecycleFromCartToApprovedReturn(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()

	cart, err := m.carts.AddItem(ctx, AddCartItemCommand{ShopperID: m.shopper.ID, ProductID: m.product.ID, Quantity: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 20, cart.TotalPrice())

	order, err := m.orders.CreateOrder(ctx, CreateOrderCommand{
		ShopperID: m.shopper.ID, FromCart: true, ShippingAddress: testAddress(), PaymentMethod: "card",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 20, order.Total)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.Equal(t, m.shop.ID, order.ShopID)
	assert.Equal(t, 3, m.stock(t))

	_, err = m.reg.Carts().Get(ctx, m.shopper.ID)
	assert.Error(t, err, "ordered lines leave the cart")

	delivered := m.deliver(t, order.ID)
	require.NotNil(t, delivered.DeliveredAt)
	deliveredAt := *delivered.DeliveredAt

	m.clock.Advance(time.Hour)
	_, err = m.orders.UpdateStatus(ctx, UpdateOrderStatusCommand{ShopID: m.shop.ID, OrderID: order.ID, Status: domain.OrderStatusDelivered, Force: true})
	require.NoError(t, err)
	again, err := m.orders.GetOrder(ctx, m.shopper, order.ID)
	require.NoError(t, err)
	assert.Equal(t, deliveredAt, *again.DeliveredAt, "deliveredAt is stamped once")

	m.clock.Advance(3 * 24 * time.Hour)
	ret, err := m.returns.CreateReturn(ctx, CreateReturnCommand{
		ShopperID: m.shopper.ID, OrderID: order.ID, Reason: domain.ReturnReasonWrongSize,
		Items: []domain.ReturnItem{{ProductID: m.product.ID, Quantity: 2, Price: 10}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusPending, ret.Status)
	assert.EqualValues(t, 20, ret.RefundAmount)

	approved, err := m.returns.UpdateStatus(ctx, UpdateReturnStatusCommand{ShopID: m.shop.ID, ReturnID: ret.ID, Status: domain.ReturnStatusApproved})
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, m.clock.Now(), *approved.ApprovedAt)

	shop, err := m.reg.Shops().Get(ctx, m.shop.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, shop.Stats.TotalOrders)
	assert.EqualValues(t, 20, shop.Stats.TotalSales)

	assert.Contains(t, m.publisher.Types(), events.TypeOrderCreated)
	assert.Contains(t, m.publisher.Types(), events.TypeReturnRequested)
	assert.Contains(t, m.logger.Events(), "order.status.forced")
}

func TestCreateOrderRejectsEmptyOrders(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()

	_, err := m.orders.CreateOrder(ctx, CreateOrderCommand{ShopperID: m.shopper.ID, ShippingAddress: testAddress(), PaymentMethod: "card"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = m.orders.CreateOrder(ctx, CreateOrderCommand{ShopperID: m.shopper.ID, FromCart: true, ShippingAddress: testAddress(), PaymentMethod: "card"})
	assert.ErrorIs(t, err, ErrValidation, "an absent cart is an empty order")
}

func TestCreateOrderValidatesCheckoutFields(t *testing.T) {
	m := newMarketplace(t)

	_, err := m.orders.CreateOrder(context.Background(), CreateOrderCommand{
		ShopperID: m.shopper.ID,
		Items:     []OrderLine{{ProductID: m.product.ID, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "paymentMethod")

	_, err = m.orders.CreateOrder(context.Background(), CreateOrderCommand{
		ShopperID:     m.shopper.ID,
		Items:         []OrderLine{{ProductID: m.product.ID, Quantity: 1}},
		PaymentMethod: "card",
	})
	require.ErrorIs(t, err, ErrValidation)
	assert.True(t, strings.Contains(err.Error(), "city, country, line1"), err.Error())
}

func TestCreateOrderComputesTotal(t *testing.T) {
	m := newMarketplace(t)
	order, err := m.orders.CreateOrder(context.Background(), CreateOrderCommand{
		ShopperID:       m.shopper.ID,
		Items:           []OrderLine{{ProductID: m.product.ID, Quantity: 3}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "card",
		Tax:             4, ShippingFee: 5, Discount: 7,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 30, order.Subtotal)
	assert.EqualValues(t, 32, order.Total)
	assert.True(t, strings.HasPrefix(order.OrderNumber, "ORD-"))
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, domain.PaymentStatusPending, order.PaymentStatus)
}

func TestCreateOrderInsufficientStockWritesNothing(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()

	_, err := m.orders.CreateOrder(ctx, CreateOrderCommand{
		ShopperID:       m.shopper.ID,
		Items:           []OrderLine{{ProductID: m.product.ID, Quantity: 6}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "card",
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	productID, available, ok := StockShortfall(err)
	require.True(t, ok)
	assert.Equal(t, m.product.ID, productID)
	assert.Equal(t, 5, available)
	assert.Equal(t, 5, m.stock(t))

	page, err := m.orders.ListShopperOrders(ctx, m.shopper.ID, ListQuery[OrderStatus]{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	m := newMarketplace(t)
	_, err := m.orders.CreateOrder(context.Background(), CreateOrderCommand{
		ShopperID:       m.shopper.ID,
		Items:           []OrderLine{{ProductID: "prd_missing", Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "card",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatusTransitionTable(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	order := m.placeOrder(t, 1)

	_, err := m.orders.UpdateStatus(ctx, UpdateOrderStatusCommand{ShopID: m.shop.ID, OrderID: order.ID, Status: domain.OrderStatusDelivered})
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = m.orders.UpdateStatus(ctx, UpdateOrderStatusCommand{ShopID: "shop_other", OrderID: order.ID, Status: domain.OrderStatusConfirmed})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = m.orders.UpdateStatus(ctx, UpdateOrderStatusCommand{ShopID: m.shop.ID, OrderID: order.ID, Status: "teleported"})
	assert.ErrorIs(t, err, ErrValidation)

	forced, err := m.orders.UpdateStatus(ctx, UpdateOrderStatusCommand{
		ShopID: m.shop.ID, OrderID: order.ID, Status: domain.OrderStatusDelivered, Force: true, Note: "courier confirmed by phone",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, forced.Status)
	assert.NotNil(t, forced.DeliveredAt)
	last := forced.StatusHistory[len(forced.StatusHistory)-1]
	assert.True(t, last.Forced)
	assert.Equal(t, "courier confirmed by phone", last.Note)
}

func TestCancelRestocksOnce(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	order := m.placeOrder(t, 2)
	require.Equal(t, 3, m.stock(t))

	cancelled, err := m.orders.UpdateStatus(ctx, UpdateOrderStatusCommand{ShopID: m.shop.ID, OrderID: order.ID, Status: domain.OrderStatusCancelled})
	require.NoError(t, err)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, 5, m.stock(t))

	_, err = m.orders.UpdateStatus(ctx, UpdateOrderStatusCommand{ShopID: m.shop.ID, OrderID: order.ID, Status: domain.OrderStatusCancelled, Force: true})
	require.NoError(t, err)
	assert.Equal(t, 5, m.stock(t), "a repeated cancel does not restock twice")
}

func TestGetOrderOwnership(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	order := m.placeOrder(t, 1)

	_, err := m.orders.GetOrder(ctx, m.shop, order.ID)
	require.NoError(t, err)

	stranger := domain.Principal{Kind: domain.PrincipalShopper, ID: "shp_2"}
	_, err = m.orders.GetOrder(ctx, stranger, order.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	otherShop := domain.Principal{Kind: domain.PrincipalShop, ID: "shop_2"}
	_, err = m.orders.GetOrder(ctx, otherShop, order.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = m.orders.GetOrder(ctx, m.shopper, "ord_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListShopOrdersFiltersByStatus(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	first := m.placeOrder(t, 1)
	m.clock.Advance(time.Minute)
	m.placeOrder(t, 1)
	_, err := m.orders.UpdateStatus(ctx, UpdateOrderStatusCommand{ShopID: m.shop.ID, OrderID: first.ID, Status: domain.OrderStatusConfirmed})
	require.NoError(t, err)

	page, err := m.orders.ListShopOrders(ctx, m.shop.ID, ListQuery[OrderStatus]{Status: []OrderStatus{domain.OrderStatusConfirmed}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, first.ID, page.Items[0].ID)

	page, err = m.orders.ListShopOrders(ctx, m.shop.ID, ListQuery[OrderStatus]{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
}

func TestGenerateOrderNumber(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	a := GenerateOrderNumber(at)
	b := GenerateOrderNumber(at)
	assert.Regexp(t, `^ORD-[0-9A-Z]+-[0-9A-Z]{4}$`, a)
	assert.Equal(t, strings.Split(a, "-")[1], strings.Split(b, "-")[1])
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.Event) error { return errors.New("broker down") }
func (failingPublisher) Close() error                                { return nil }

func TestSideEffectFailuresDoNotFailTheOrder(t *testing.T) {
	m := newMarketplace(t)
	orders, err := NewOrderService(OrderServiceDeps{
		Orders: m.reg.Orders(), Products: m.reg.Products(), Shops: m.reg.Shops(), Carts: m.reg.Carts(),
		Events: failingPublisher{}, Clock: m.clock.Now, Logger: m.logger.Log,
	})
	require.NoError(t, err)

	_, err = orders.CreateOrder(context.Background(), CreateOrderCommand{
		ShopperID:       m.shopper.ID,
		Items:           []OrderLine{{ProductID: m.product.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "card",
	})
	require.NoError(t, err)
	assert.Contains(t, m.logger.Events(), "event.publish.failed")
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	const buyers = 20
	stock := m.stock(t)
	require.Less(t, stock, buyers)

	var seq atomic.Int64
	orders, err := NewOrderService(OrderServiceDeps{
		Orders: m.reg.Orders(), Products: m.reg.Products(), Shops: m.reg.Shops(), Carts: m.reg.Carts(), Clock: m.clock.Now,
		OrderNumber: func(time.Time) string {
			return fmt.Sprintf("ORD-RACE-%03d", seq.Add(1))
		},
	})
	require.NoError(t, err)

	var (
		wg         sync.WaitGroup
		placed     atomic.Int64
		shortfalls atomic.Int64
		unexpected = make(chan error, buyers)
	)
	start := make(chan struct{})
	for range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := orders.CreateOrder(ctx, CreateOrderCommand{
				ShopperID:       m.shopper.ID,
				Items:           []OrderLine{{ProductID: m.product.ID, Quantity: 1}},
				ShippingAddress: testAddress(),
				PaymentMethod:   "card",
			})
			switch {
			case err == nil:
				placed.Add(1)
			case errors.Is(err, ErrInsufficientStock):
				shortfalls.Add(1)
			default:
				unexpected <- err
			}
		}()
	}
	close(start)
	wg.Wait()
	close(unexpected)

	for err := range unexpected {
		t.Errorf("unexpected error: %v", err)
	}
	assert.Equal(t, int64(stock), placed.Load())
	assert.Equal(t, int64(buyers-stock), shortfalls.Load())
	assert.Equal(t, 0, m.stock(t))

	page, err := orders.ListShopperOrders(ctx, m.shopper.ID, ListQuery[OrderStatus]{})
	require.NoError(t, err)
	assert.Len(t, page.Items, stock)
}
