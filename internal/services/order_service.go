package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strconv"
	"strings"
	"time"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/platform/events"
	"github.com/atelier-market/api/internal/platform/notify"
	"github.com/atelier-market/api/internal/platform/textutil"
	"github.com/atelier-market/api/internal/repositories"
)

const (
	orderIDPrefix       = "ord_"
	orderNumberPrefix   = "ORD-"
	orderSuffixLength   = 4
	maxOrderLines       = 50
	maxOrderNotesLength = 1000
)

// OrderServiceDeps bundles collaborators required to construct an OrderService.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Shops       repositories.ShopRepository
	Carts       repositories.CartRepository
	Events      events.Publisher
	Notifier    notify.Notifier
	Clock       func() time.Time
	IDGen       func() string
	OrderNumber func(time.Time) string
	Logger      Logger
}

type orderService struct {
	orders      repositories.OrderRepository
	products    repositories.ProductRepository
	shops       repositories.ShopRepository
	carts       repositories.CartRepository
	now         func() time.Time
	newID       func() string
	orderNumber func(time.Time) string
	log         Logger
	after       afterCommit
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil || deps.Products == nil {
		return nil, errors.New("order service: order and product repositories are required")
	}
	if deps.Shops == nil || deps.Carts == nil {
		return nil, errors.New("order service: shop and cart repositories are required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return newID(orderIDPrefix) }
	}
	numberGen := deps.OrderNumber
	if numberGen == nil {
		numberGen = GenerateOrderNumber
	}
	now := func() time.Time { return clock().UTC() }
	after := newAfterCommit(deps.Logger, deps.Events, deps.Notifier, now)
	return &orderService{
		orders:      deps.Orders,
		products:    deps.Products,
		shops:       deps.Shops,
		carts:       deps.Carts,
		now:         now,
		newID:       idGen,
		orderNumber: numberGen,
		log:         after.log,
		after:       after,
	}, nil
}

// GenerateOrderNumber formats ORD-<base36 unix millis>-<random base36 suffix>.
func GenerateOrderNumber(at time.Time) string {
	var suffix strings.Builder
	for range orderSuffixLength {
		n, err := rand.Int(rand.Reader, big.NewInt(36))
		if err != nil {
			n = big.NewInt(at.UnixNano() % 36)
		}
		suffix.WriteString(strconv.FormatInt(n.Int64(), 36))
	}
	return orderNumberPrefix + strings.ToUpper(strconv.FormatInt(at.UnixMilli(), 36)) + "-" + strings.ToUpper(suffix.String())
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	lines := cmd.Items
	if cmd.FromCart {
		cart, err := s.carts.Get(ctx, cmd.ShopperID)
		if err != nil && !repositories.IsNotFound(err) {
			return Order{}, mapRepoError("orders.cart", err)
		}
		lines = make([]OrderLine, 0, len(cart.Items))
		for _, item := range cart.Items {
			if cmd.ShopID != "" && item.ShopID != cmd.ShopID {
				continue
			}
			lines = append(lines, OrderLine{ProductID: item.ProductID, Quantity: item.Quantity, Options: item.Options})
		}
	}
	if len(lines) == 0 {
		return Order{}, validationError("order must contain at least one item")
	}
	if len(lines) > maxOrderLines {
		return Order{}, validationError("order may contain at most %d items", maxOrderLines)
	}
	if err := validateCheckout(cmd); err != nil {
		return Order{}, err
	}

	now := s.now()
	order := domain.Order{
		ID:              s.newID(),
		OrderNumber:     s.orderNumber(now),
		ShopperID:       cmd.ShopperID,
		ShopID:          cmd.ShopID,
		Tax:             cmd.Tax,
		ShippingFee:     cmd.ShippingFee,
		Discount:        cmd.Discount,
		ShippingAddress: cmd.ShippingAddress,
		PaymentMethod:   strings.TrimSpace(cmd.PaymentMethod),
		PaymentStatus:   domain.PaymentStatusPending,
		Status:          domain.OrderStatusPending,
		Notes:           textutil.PlainText(cmd.Notes, maxOrderNotesLength),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	stock := make([]repositories.StockLine, 0, len(lines))
	for i, line := range lines {
		if line.Quantity < 1 {
			return Order{}, validationError("items[%d].quantity must be at least 1", i)
		}
		product, err := s.products.Get(ctx, line.ProductID)
		if err != nil {
			return Order{}, mapRepoError("orders.product", err)
		}
		if !product.Active {
			return Order{}, validationError("product %s is not available", product.ID)
		}
		if order.ShopID == "" {
			order.ShopID = product.ShopID
		}
		if product.ShopID != order.ShopID {
			return Order{}, validationError("product %s belongs to another shop", product.ID)
		}
		code, err := normaliseCurrency(product.Currency)
		if err != nil {
			return Order{}, err
		}
		if order.Currency == "" {
			order.Currency = code
		} else if order.Currency != code {
			return Order{}, validationError("all items must share one currency")
		}

		item := domain.OrderItem{
			ID:           fmt.Sprintf("%s_%02d", order.ID, i+1),
			OrderID:      order.ID,
			ProductID:    product.ID,
			ProductName:  product.Name,
			ProductImage: product.PrimaryImage(),
			UnitPrice:    product.Price,
			Quantity:     line.Quantity,
			Subtotal:     product.Price * int64(line.Quantity),
			Options:      textutil.NormalizeStringMap(line.Options),
		}
		order.Items = append(order.Items, item)
		order.Subtotal += item.Subtotal
		stock = append(stock, repositories.StockLine{ProductID: product.ID, Quantity: line.Quantity})
	}

	order.Total = domain.ComputeTotal(order.Subtotal, order.Discount, order.Tax, order.ShippingFee)
	if order.Total < 0 {
		return Order{}, validationError("discount exceeds order amount")
	}
	order.StatusHistory = []domain.StatusChange{{To: string(order.Status), ActorID: cmd.ShopperID, ChangedAt: now}}

	if err := s.orders.Place(ctx, order, stock); err != nil {
		return Order{}, mapRepoError("orders.place", err)
	}
	s.log(ctx, "order.created", map[string]any{"orderId": order.ID, "orderNumber": order.OrderNumber, "shopId": order.ShopID, "total": order.Total})

	s.after.step(ctx, "order.shop_stats", map[string]any{"orderId": order.ID, "shopId": order.ShopID}, func(ctx context.Context) error {
		return s.shops.IncrementStats(ctx, order.ShopID, 1, order.Subtotal)
	})
	for _, item := range order.Items {
		s.after.step(ctx, "order.product_sales", map[string]any{"orderId": order.ID, "productId": item.ProductID}, func(ctx context.Context) error {
			return s.products.IncrementSales(ctx, item.ProductID, item.Quantity)
		})
	}
	if cmd.FromCart {
		s.after.step(ctx, "order.cart_clear", map[string]any{"orderId": order.ID}, func(ctx context.Context) error {
			return s.clearOrderedLines(ctx, cmd.ShopperID, order)
		})
	}
	s.after.publish(ctx, events.Event{
		Type: events.TypeOrderCreated, Key: order.ID, ShopperID: order.ShopperID, ShopID: order.ShopID, OccurredAt: now,
		Data: map[string]any{"orderNumber": order.OrderNumber, "total": order.Total, "currency": order.Currency},
	})
	s.after.notify(ctx, notify.Message{
		Recipient: domain.PrincipalShop, ID: order.ShopID,
		Title: "New order " + order.OrderNumber, Body: fmt.Sprintf("%d item(s)", len(order.Items)),
		Data: map[string]string{"orderId": order.ID},
	})
	return order, nil
}

// clearOrderedLines drops the ordered shop's lines and deletes the cart once empty.
func (s *orderService) clearOrderedLines(ctx context.Context, shopperID string, order domain.Order) error {
	cart, err := s.carts.Get(ctx, shopperID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil
		}
		return err
	}
	remaining := cart.Items[:0]
	for _, item := range cart.Items {
		if item.ShopID != order.ShopID || !order.ContainsProduct(item.ProductID) {
			remaining = append(remaining, item)
		}
	}
	if len(remaining) == 0 {
		return s.carts.Delete(ctx, shopperID)
	}
	cart.Items = remaining
	cart.UpdatedAt = s.now()
	return s.carts.Save(ctx, cart)
}

func (s *orderService) GetOrder(ctx context.Context, actor Principal, orderID string) (Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, mapRepoError("orders.get", err)
	}
	switch {
	case actor.IsShopper() && order.ShopperID == actor.ID:
	case actor.IsShop() && order.ShopID == actor.ID:
	default:
		return Order{}, fmt.Errorf("%w: order %s", ErrForbidden, orderID)
	}
	return order, nil
}

func (s *orderService) ListShopperOrders(ctx context.Context, shopperID string, query ListQuery[OrderStatus]) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, repositories.OrderListFilter{ShopperID: shopperID, Status: query.Status, Pagination: query.Pagination})
	return page, mapRepoError("orders.list", err)
}

func (s *orderService) ListShopOrders(ctx context.Context, shopID string, query ListQuery[OrderStatus]) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, repositories.OrderListFilter{ShopID: shopID, Status: query.Status, Pagination: query.Pagination})
	return page, mapRepoError("orders.list", err)
}

// UpdateStatus applies a validated or forced transition inside one repository transaction.
// First entry into shipped, delivered or cancelled stamps its timestamp; first entry into
// cancelled also restores stock.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	if _, ok := domain.ParseOrderStatus(string(cmd.Status)); !ok {
		return Order{}, validationError("unknown status %q", cmd.Status)
	}
	now := s.now()
	var previous domain.OrderStatus
	updated, err := s.orders.Mutate(ctx, cmd.OrderID, func(order *domain.Order) ([]repositories.StockLine, error) {
		if order.ShopID != cmd.ShopID {
			return nil, fmt.Errorf("%w: order belongs to another shop", ErrForbidden)
		}
		previous = order.Status
		if !cmd.Force && !order.Status.CanTransitionTo(cmd.Status) {
			return nil, fmt.Errorf("%w: cannot move order from %s to %s", ErrInvalidState, order.Status, cmd.Status)
		}

		var restock []repositories.StockLine
		switch cmd.Status {
		case domain.OrderStatusShipped:
			if order.ShippedAt == nil {
				order.ShippedAt = &now
			}
		case domain.OrderStatusDelivered:
			if order.DeliveredAt == nil {
				order.DeliveredAt = &now
			}
		case domain.OrderStatusCancelled:
			if order.CancelledAt == nil {
				order.CancelledAt = &now
				for _, item := range order.Items {
					restock = append(restock, repositories.StockLine{ProductID: item.ProductID, Quantity: item.Quantity})
				}
			}
		case domain.OrderStatusRefunded:
			order.PaymentStatus = domain.PaymentStatusRefunded
		}
		order.Status = cmd.Status
		order.UpdatedAt = now
		order.StatusHistory = append(order.StatusHistory, domain.StatusChange{
			From: string(previous), To: string(cmd.Status), ActorID: cmd.ShopID, Forced: cmd.Force,
			Note: textutil.PlainText(cmd.Note, 500), ChangedAt: now,
		})
		return restock, nil
	})
	if err != nil {
		return Order{}, mapRepoError("orders.updateStatus", err)
	}

	fields := map[string]any{"orderId": updated.ID, "from": string(previous), "to": string(updated.Status)}
	if cmd.Force && !previous.CanTransitionTo(cmd.Status) {
		s.log(ctx, "order.status.forced", fields)
	} else {
		s.log(ctx, "order.status.changed", fields)
	}
	s.after.publish(ctx, events.Event{
		Type: events.TypeOrderStatusChanged, Key: updated.ID, ShopperID: updated.ShopperID, ShopID: updated.ShopID, OccurredAt: now,
		Data: map[string]any{"from": string(previous), "to": string(updated.Status), "forced": cmd.Force},
	})
	s.after.notify(ctx, notify.Message{
		Recipient: domain.PrincipalShopper, ID: updated.ShopperID,
		Title: "Order " + updated.OrderNumber, Body: "Status changed to " + string(updated.Status),
		Data: map[string]string{"orderId": updated.ID, "status": string(updated.Status)},
	})
	return updated, nil
}

func validateCheckout(cmd CreateOrderCommand) error {
	if cmd.Tax < 0 || cmd.ShippingFee < 0 || cmd.Discount < 0 {
		return validationError("tax, shippingFee and discount must not be negative")
	}
	if strings.TrimSpace(cmd.PaymentMethod) == "" {
		return validationError("paymentMethod is required")
	}
	a := cmd.ShippingAddress
	var missing []string
	for field, value := range map[string]string{"recipient": a.Recipient, "line1": a.Line1, "city": a.City, "postalCode": a.PostalCode, "country": a.Country} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return validationError("shippingAddress is missing %s", strings.Join(missing, ", "))
	}
	return nil
}
