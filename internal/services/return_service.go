package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/platform/events"
	"github.com/atelier-market/api/internal/platform/notify"
	"github.com/atelier-market/api/internal/platform/textutil"
	"github.com/atelier-market/api/internal/repositories"
)

const (
	// DefaultReturnWindow bounds how long after delivery a return may be requested.
	DefaultReturnWindow = 14 * 24 * time.Hour

	returnIDPrefix    = "ret_"
	maxReturnItems    = 50
	maxReturnTextSize = 2000
)

// ReturnServiceDeps bundles collaborators required to construct a ReturnService.
type ReturnServiceDeps struct {
	Returns  repositories.ReturnRepository
	Orders   repositories.OrderRepository
	Events   events.Publisher
	Notifier notify.Notifier
	Window   time.Duration
	Clock    func() time.Time
	Logger   Logger
}

type returnService struct {
	returns repositories.ReturnRepository
	orders  repositories.OrderRepository
	window  time.Duration
	now     func() time.Time
	log     Logger
	after   afterCommit
}

// NewReturnService wires dependencies into a concrete ReturnService implementation.
func NewReturnService(deps ReturnServiceDeps) (ReturnService, error) {
	if deps.Returns == nil || deps.Orders == nil {
		return nil, errors.New("return service: return and order repositories are required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	window := deps.Window
	if window <= 0 {
		window = DefaultReturnWindow
	}
	now := func() time.Time { return clock().UTC() }
	after := newAfterCommit(deps.Logger, deps.Events, deps.Notifier, now)
	return &returnService{
		returns: deps.Returns,
		orders:  deps.Orders,
		window:  window,
		now:     now,
		log:     after.log,
		after:   after,
	}, nil
}

// ReturnIDForOrder derives the return document ID; one order can hold at most one return.
func ReturnIDForOrder(orderID string) string {
	return returnIDPrefix + orderID
}

// CreateReturn checks, in order: order exists, caller owns it, it was delivered, the window
// has not elapsed, and no return exists yet.
func (s *returnService) CreateReturn(ctx context.Context, cmd CreateReturnCommand) (Return, error) {
	if err := validateReturnItems(cmd); err != nil {
		return Return{}, err
	}

	order, err := s.orders.Get(ctx, cmd.OrderID)
	if err != nil {
		return Return{}, mapRepoError("returns.order", err)
	}
	if order.ShopperID != cmd.ShopperID {
		return Return{}, fmt.Errorf("%w: order belongs to another shopper", ErrForbidden)
	}
	if order.Status != domain.OrderStatusDelivered {
		return Return{}, fmt.Errorf("%w: only delivered orders can be returned (status %s)", ErrInvalidState, order.Status)
	}
	now := s.now()
	if order.DeliveredAt == nil || now.Sub(*order.DeliveredAt) > s.window {
		return Return{}, &ReturnWindowError{Window: s.window}
	}
	if _, err := s.returns.FindByOrder(ctx, order.ID); err == nil {
		return Return{}, fmt.Errorf("%w: order %s already has a return", ErrConflict, order.ID)
	} else if !repositories.IsNotFound(err) {
		return Return{}, mapRepoError("returns.findByOrder", err)
	}

	items := make([]domain.ReturnItem, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		item.Reason = textutil.PlainText(item.Reason, 200)
		items = append(items, item)
	}
	refund, _ := domain.RefundFor(items)
	ret := domain.Return{
		ID:             ReturnIDForOrder(order.ID),
		OrderID:        order.ID,
		ShopperID:      order.ShopperID,
		ShopID:         order.ShopID,
		Items:          items,
		Reason:         cmd.Reason,
		DetailedReason: textutil.PlainText(cmd.DetailedReason, maxReturnTextSize),
		Status:         domain.ReturnStatusPending,
		RefundAmount:   refund,
		StatusHistory:  []domain.StatusChange{{To: string(domain.ReturnStatusPending), ActorID: cmd.ShopperID, ChangedAt: now}},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.returns.Create(ctx, ret); err != nil {
		return Return{}, mapRepoError("returns.create", err)
	}

	s.log(ctx, "return.requested", map[string]any{"returnId": ret.ID, "orderId": ret.OrderID, "refundAmount": ret.RefundAmount})
	s.after.publish(ctx, events.Event{
		Type: events.TypeReturnRequested, Key: ret.OrderID, ShopperID: ret.ShopperID, ShopID: ret.ShopID, OccurredAt: now,
		Data: map[string]any{"returnId": ret.ID, "refundAmount": ret.RefundAmount, "reason": string(ret.Reason)},
	})
	s.after.notify(ctx, notify.Message{
		Recipient: domain.PrincipalShop, ID: ret.ShopID,
		Title: "Return requested", Body: "Order " + order.OrderNumber,
		Data: map[string]string{"returnId": ret.ID, "orderId": ret.OrderID},
	})
	return ret, nil
}

func (s *returnService) GetReturn(ctx context.Context, actor Principal, returnID string) (Return, error) {
	ret, err := s.returns.Get(ctx, returnID)
	if err != nil {
		return Return{}, mapRepoError("returns.get", err)
	}
	switch {
	case actor.IsShopper() && ret.ShopperID == actor.ID:
	case actor.IsShop() && ret.ShopID == actor.ID:
	default:
		return Return{}, fmt.Errorf("%w: return %s", ErrForbidden, returnID)
	}
	return ret, nil
}

func (s *returnService) ListShopperReturns(ctx context.Context, shopperID string, query ListQuery[ReturnStatus]) (domain.CursorPage[Return], error) {
	page, err := s.returns.List(ctx, repositories.ReturnListFilter{ShopperID: shopperID, Status: query.Status, Pagination: query.Pagination})
	return page, mapRepoError("returns.list", err)
}

func (s *returnService) ListShopReturns(ctx context.Context, actor Principal, shopID string, query ListQuery[ReturnStatus]) (domain.CursorPage[Return], error) {
	if !actor.IsShop() || actor.ID != shopID {
		return domain.CursorPage[Return]{}, fmt.Errorf("%w: cannot list returns of another shop", ErrForbidden)
	}
	page, err := s.returns.List(ctx, repositories.ReturnListFilter{ShopID: shopID, Status: query.Status, Pagination: query.Pagination})
	return page, mapRepoError("returns.list", err)
}

// UpdateStatus moves a return. It never touches stock or payments.
func (s *returnService) UpdateStatus(ctx context.Context, cmd UpdateReturnStatusCommand) (Return, error) {
	if _, ok := domain.ParseReturnStatus(string(cmd.Status)); !ok {
		return Return{}, validationError("unknown status %q", cmd.Status)
	}
	now := s.now()
	var previous domain.ReturnStatus
	updated, err := s.returns.Mutate(ctx, cmd.ReturnID, func(ret *domain.Return) error {
		if ret.ShopID != cmd.ShopID {
			return fmt.Errorf("%w: return belongs to another shop", ErrForbidden)
		}
		previous = ret.Status
		if !cmd.Force && !ret.Status.CanTransitionTo(cmd.Status) {
			return fmt.Errorf("%w: cannot move return from %s to %s", ErrInvalidState, ret.Status, cmd.Status)
		}
		switch cmd.Status {
		case domain.ReturnStatusApproved:
			if ret.ApprovedAt == nil {
				ret.ApprovedAt = &now
			}
		case domain.ReturnStatusRejected:
			if ret.RejectedAt == nil {
				ret.RejectedAt = &now
			}
		case domain.ReturnStatusCompleted:
			if ret.CompletedAt == nil {
				ret.CompletedAt = &now
			}
		}
		if notes := textutil.PlainText(cmd.AdminNotes, maxReturnTextSize); notes != "" {
			ret.AdminNotes = notes
		}
		ret.Status = cmd.Status
		ret.UpdatedAt = now
		ret.StatusHistory = append(ret.StatusHistory, domain.StatusChange{
			From: string(previous), To: string(cmd.Status), ActorID: cmd.ShopID, Forced: cmd.Force, ChangedAt: now,
		})
		return nil
	})
	if err != nil {
		return Return{}, mapRepoError("returns.updateStatus", err)
	}

	fields := map[string]any{"returnId": updated.ID, "from": string(previous), "to": string(updated.Status)}
	if cmd.Force && !previous.CanTransitionTo(cmd.Status) {
		s.log(ctx, "return.status.forced", fields)
	} else {
		s.log(ctx, "return.status.changed", fields)
	}
	s.after.publish(ctx, events.Event{
		Type: events.TypeReturnStatusChange, Key: updated.OrderID, ShopperID: updated.ShopperID, ShopID: updated.ShopID, OccurredAt: now,
		Data: map[string]any{"returnId": updated.ID, "from": string(previous), "to": string(updated.Status)},
	})
	s.after.notify(ctx, notify.Message{
		Recipient: domain.PrincipalShopper, ID: updated.ShopperID,
		Title: "Return update", Body: "Your return is " + string(updated.Status),
		Data: map[string]string{"returnId": updated.ID, "status": string(updated.Status)},
	})
	return updated, nil
}

func validateReturnItems(cmd CreateReturnCommand) error {
	if cmd.OrderID == "" {
		return validationError("orderId is required")
	}
	if !cmd.Reason.IsValid() {
		return validationError("reason %q is not recognised", cmd.Reason)
	}
	if len(cmd.Items) == 0 {
		return validationError("at least one item is required")
	}
	if len(cmd.Items) > maxReturnItems {
		return validationError("at most %d items may be returned", maxReturnItems)
	}
	for i, item := range cmd.Items {
		if item.ProductID == "" {
			return validationError("items[%d].productId is required", i)
		}
		if item.Quantity < 1 {
			return validationError("items[%d].quantity must be at least 1", i)
		}
		if item.Price < 0 {
			return validationError("items[%d].price must not be negative", i)
		}
		if item.Price > domain.MaxReturnItemPrice {
			return validationError("items[%d].price must be at most %d", i, domain.MaxReturnItemPrice)
		}
	}
	if _, ok := domain.RefundFor(cmd.Items); !ok {
		return validationError("refund amount is out of range")
	}
	return nil
}
