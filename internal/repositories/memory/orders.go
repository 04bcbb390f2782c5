package memory

import (
	"context"
	"slices"
	"strings"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/repositories"
)

type orderRepo struct{ s *Store }

func (r orderRepo) Place(_ context.Context, order domain.Order, stock []repositories.StockLine) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.orders[order.ID]; exists {
		return repositories.Conflict("orders.place", "order %s already exists", order.ID)
	}
	if _, exists := r.s.orderNumbers[order.OrderNumber]; exists {
		return repositories.Conflict("orders.place", "order number %s already used", order.OrderNumber)
	}

	requested := make(map[string]int, len(stock))
	for _, line := range stock {
		requested[line.ProductID] += line.Quantity
	}
	for productID, quantity := range requested {
		product, ok := r.s.products[productID]
		if !ok {
			return repositories.NotFound("orders.place", "product %s not found", productID)
		}
		if product.StockQuantity < quantity {
			return repositories.NewInsufficientStockError(productID, quantity, product.StockQuantity)
		}
	}
	for productID, quantity := range requested {
		product := r.s.products[productID]
		product.StockQuantity -= quantity
		r.s.products[productID] = product
	}

	r.s.orders[order.ID] = cloneOrder(order)
	r.s.orderNumbers[order.OrderNumber] = order.ID
	return nil
}

func (r orderRepo) Get(_ context.Context, orderID string) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NotFound("orders.get", "order %s not found", orderID)
	}
	return cloneOrder(order), nil
}

func (r orderRepo) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	r.s.mu.Lock()
	matches := make([]domain.Order, 0)
	for _, order := range r.s.orders {
		if filter.ShopperID != "" && order.ShopperID != filter.ShopperID {
			continue
		}
		if filter.ShopID != "" && order.ShopID != filter.ShopID {
			continue
		}
		if len(filter.Status) > 0 && !slices.Contains(filter.Status, order.Status) {
			continue
		}
		matches = append(matches, cloneOrder(order))
	}
	r.s.mu.Unlock()

	slices.SortFunc(matches, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	start, end, next := pageWindow(filter.Pagination.PageToken, filter.Pagination.PageSize, len(matches))
	return domain.CursorPage[domain.Order]{Items: matches[start:end], NextPageToken: next}, nil
}

func (r orderRepo) Mutate(_ context.Context, orderID string, fn repositories.OrderMutation) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NotFound("orders.mutate", "order %s not found", orderID)
	}
	working := cloneOrder(current)
	restock, err := fn(&working)
	if err != nil {
		return domain.Order{}, err
	}
	for _, line := range restock {
		product, ok := r.s.products[line.ProductID]
		if !ok {
			// product removed after purchase; nothing to restore
			continue
		}
		product.StockQuantity += line.Quantity
		r.s.products[line.ProductID] = product
	}
	r.s.orders[orderID] = cloneOrder(working)
	return working, nil
}

type returnRepo struct{ s *Store }

func (r returnRepo) Create(_ context.Context, ret domain.Return) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.returnByOrder[ret.OrderID]; exists {
		return repositories.Conflict("returns.create", "order %s already has a return", ret.OrderID)
	}
	if _, exists := r.s.returns[ret.ID]; exists {
		return repositories.Conflict("returns.create", "return %s already exists", ret.ID)
	}
	r.s.returns[ret.ID] = cloneReturn(ret)
	r.s.returnByOrder[ret.OrderID] = ret.ID
	return nil
}

func (r returnRepo) Get(_ context.Context, returnID string) (domain.Return, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ret, ok := r.s.returns[returnID]
	if !ok {
		return domain.Return{}, repositories.NotFound("returns.get", "return %s not found", returnID)
	}
	return cloneReturn(ret), nil
}

func (r returnRepo) FindByOrder(_ context.Context, orderID string) (domain.Return, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.returnByOrder[orderID]
	if !ok {
		return domain.Return{}, repositories.NotFound("returns.findByOrder", "no return for order %s", orderID)
	}
	return cloneReturn(r.s.returns[id]), nil
}

func (r returnRepo) List(_ context.Context, filter repositories.ReturnListFilter) (domain.CursorPage[domain.Return], error) {
	r.s.mu.Lock()
	matches := make([]domain.Return, 0)
	for _, ret := range r.s.returns {
		if filter.ShopperID != "" && ret.ShopperID != filter.ShopperID {
			continue
		}
		if filter.ShopID != "" && ret.ShopID != filter.ShopID {
			continue
		}
		if len(filter.Status) > 0 && !slices.Contains(filter.Status, ret.Status) {
			continue
		}
		matches = append(matches, cloneReturn(ret))
	}
	r.s.mu.Unlock()

	slices.SortFunc(matches, func(a, b domain.Return) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	start, end, next := pageWindow(filter.Pagination.PageToken, filter.Pagination.PageSize, len(matches))
	return domain.CursorPage[domain.Return]{Items: matches[start:end], NextPageToken: next}, nil
}

func (r returnRepo) Mutate(_ context.Context, returnID string, fn func(ret *domain.Return) error) (domain.Return, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.returns[returnID]
	if !ok {
		return domain.Return{}, repositories.NotFound("returns.mutate", "return %s not found", returnID)
	}
	working := cloneReturn(current)
	if err := fn(&working); err != nil {
		return domain.Return{}, err
	}
	r.s.returns[returnID] = cloneReturn(working)
	return working, nil
}
