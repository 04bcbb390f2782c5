// Package memory provides process-local repository implementations used for local development
// and tests. All repositories share one Store so multi-document operations stay atomic.
package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/platform/pagination"
	"github.com/atelier-market/api/internal/repositories"
)

const defaultPageSize = 20

// Store holds every collection behind a single mutex.
type Store struct {
	mu sync.Mutex

	shoppers      map[string]domain.Shopper
	shops         map[string]domain.Shop
	products      map[string]domain.Product
	carts         map[string]domain.Cart
	orders        map[string]domain.Order
	orderNumbers  map[string]string
	returns       map[string]domain.Return
	returnByOrder map[string]string
	reviews       map[string]domain.Review
	reviewKeys    map[string]string
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		shoppers:      make(map[string]domain.Shopper),
		shops:         make(map[string]domain.Shop),
		products:      make(map[string]domain.Product),
		carts:         make(map[string]domain.Cart),
		orders:        make(map[string]domain.Order),
		orderNumbers:  make(map[string]string),
		returns:       make(map[string]domain.Return),
		returnByOrder: make(map[string]string),
		reviews:       make(map[string]domain.Review),
		reviewKeys:    make(map[string]string),
	}
}

// Registry implements repositories.Registry on top of a Store.
type Registry struct {
	store *Store
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry returns a registry backed by a fresh store.
func NewRegistry() *Registry {
	return &Registry{store: NewStore()}
}

// Store exposes the underlying store, primarily for seeding in tests.
func (r *Registry) Store() *Store { return r.store }

func (r *Registry) Shoppers() repositories.ShopperRepository { return shopperRepo{r.store} }
func (r *Registry) Shops() repositories.ShopRepository       { return shopRepo{r.store} }
func (r *Registry) Products() repositories.ProductRepository { return productRepo{r.store} }
func (r *Registry) Carts() repositories.CartRepository       { return cartRepo{r.store} }
func (r *Registry) Orders() repositories.OrderRepository     { return orderRepo{r.store} }
func (r *Registry) Returns() repositories.ReturnRepository   { return returnRepo{r.store} }
func (r *Registry) Reviews() repositories.ReviewRepository   { return reviewRepo{r.store} }

// Close implements repositories.Registry.
func (r *Registry) Close(context.Context) error { return nil }

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func pageWindow(token string, size int, total int) (start, end int, next string) {
	if size <= 0 {
		size = defaultPageSize
	}
	if cursor, err := pagination.DecodeToken(token); err == nil {
		start = cursor.Offset
	}
	start = min(start, total)
	end = start + size
	if end >= total {
		return start, total, ""
	}
	return start, end, pagination.EncodeToken(pagination.Cursor{Offset: end})
}

func cloneOrder(order domain.Order) domain.Order {
	order.Items = slices.Clone(order.Items)
	for i := range order.Items {
		order.Items[i].Options = maps.Clone(order.Items[i].Options)
	}
	order.StatusHistory = slices.Clone(order.StatusHistory)
	order.ShippedAt = clonePtr(order.ShippedAt)
	order.DeliveredAt = clonePtr(order.DeliveredAt)
	order.CancelledAt = clonePtr(order.CancelledAt)
	return order
}

func cloneCart(cart domain.Cart) domain.Cart {
	cart.Items = slices.Clone(cart.Items)
	for i := range cart.Items {
		cart.Items[i].Options = maps.Clone(cart.Items[i].Options)
	}
	return cart
}

func cloneReturn(ret domain.Return) domain.Return {
	ret.Items = slices.Clone(ret.Items)
	ret.StatusHistory = slices.Clone(ret.StatusHistory)
	ret.ApprovedAt = clonePtr(ret.ApprovedAt)
	ret.RejectedAt = clonePtr(ret.RejectedAt)
	ret.CompletedAt = clonePtr(ret.CompletedAt)
	return ret
}

func cloneReview(review domain.Review) domain.Review {
	review.Images = slices.Clone(review.Images)
	return review
}

func cloneProduct(product domain.Product) domain.Product {
	product.Images = slices.Clone(product.Images)
	return product
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	copied := *v
	return &copied
}
