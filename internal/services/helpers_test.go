package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/platform/events"
	"github.com/atelier-market/api/internal/repositories/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, evt := range p.events {
		types = append(types, evt.Type)
	}
	return types
}

type recordingLogger struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingLogger) Log(_ context.Context, event string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordingLogger) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// marketplace wires every service over a shared in-memory registry with one shop, one shopper
// and one product (stock 5, price 10).
type marketplace struct {
	reg       *memory.Registry
	clock     *testClock
	publisher *recordingPublisher
	logger    *recordingLogger

	carts   CartService
	orders  OrderService
	returns ReturnService
	reviews ReviewService
	ratings RatingAggregator

	shopper domain.Principal
	shop    domain.Principal
	product domain.Product
}

func newMarketplace(t *testing.T) *marketplace {
	t.Helper()
	ctx := context.Background()
	m := &marketplace{
		reg:       memory.NewRegistry(),
		clock:     newTestClock(),
		publisher: &recordingPublisher{},
		logger:    &recordingLogger{},
	}

	shopper := domain.Shopper{ID: "shp_1", Email: "ada@example.com", Name: "Ada", Role: domain.RoleShopper, Active: true}
	shop := domain.Shop{ID: "shop_1", Email: "atelier@example.com", Name: "Atelier", Active: true}
	require.NoError(t, m.reg.Shoppers().Create(ctx, shopper))
	require.NoError(t, m.reg.Shops().Create(ctx, shop))
	m.shopper = shopper.Principal()
	m.shop = shop.Principal()

	m.product = domain.Product{ID: "prd_1", ShopID: shop.ID, Name: "Linen shirt", Price: 10, Currency: "USD", StockQuantity: 5, Active: true}
	require.NoError(t, m.reg.Products().Create(ctx, m.product))

	var err error
	m.carts, err = NewCartService(CartServiceDeps{Carts: m.reg.Carts(), Products: m.reg.Products(), Clock: m.clock.Now})
	require.NoError(t, err)
	m.orders, err = NewOrderService(OrderServiceDeps{
		Orders: m.reg.Orders(), Products: m.reg.Products(), Shops: m.reg.Shops(), Carts: m.reg.Carts(),
		Events: m.publisher, Clock: m.clock.Now, Logger: m.logger.Log,
	})
	require.NoError(t, err)
	m.returns, err = NewReturnService(ReturnServiceDeps{
		Returns: m.reg.Returns(), Orders: m.reg.Orders(), Events: m.publisher, Clock: m.clock.Now, Logger: m.logger.Log,
	})
	require.NoError(t, err)
	m.ratings, err = NewRatingAggregator(RatingAggregatorDeps{
		Reviews: m.reg.Reviews(), Products: m.reg.Products(), Events: m.publisher, Clock: m.clock.Now, Logger: m.logger.Log,
	})
	require.NoError(t, err)
	m.reviews, err = NewReviewService(ReviewServiceDeps{
		Reviews: m.reg.Reviews(), Orders: m.reg.Orders(), Products: m.reg.Products(), Ratings: m.ratings,
		Events: m.publisher, Clock: m.clock.Now, Logger: m.logger.Log,
	})
	require.NoError(t, err)
	return m
}

func testAddress() domain.Address {
	return domain.Address{Recipient: "Ada", Line1: "1 Loom St", City: "Leeds", PostalCode: "LS1", Country: "GB"}
}

func (m *marketplace) placeOrder(t *testing.T, quantity int) domain.Order {
	t.Helper()
	order, err := m.orders.CreateOrder(context.Background(), CreateOrderCommand{
		ShopperID:       m.shopper.ID,
		Items:           []OrderLine{{ProductID: m.product.ID, Quantity: quantity}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "card",
	})
	require.NoError(t, err)
	return order
}

// deliver walks the order through the validated path to delivered.
func (m *marketplace) deliver(t *testing.T, orderID string) domain.Order {
	t.Helper()
	var order domain.Order
	for _, status := range []domain.OrderStatus{
		domain.OrderStatusConfirmed, domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusDelivered,
	} {
		var err error
		order, err = m.orders.UpdateStatus(context.Background(), UpdateOrderStatusCommand{ShopID: m.shop.ID, OrderID: orderID, Status: status})
		require.NoError(t, err)
	}
	return order
}

func (m *marketplace) stock(t *testing.T) int {
	t.Helper()
	product, err := m.reg.Products().Get(context.Background(), m.product.ID)
	require.NoError(t, err)
	return product.StockQuantity
}
