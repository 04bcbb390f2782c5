package repositories

import (
	"context"

	domain "github.com/atelier-market/api/internal/domain"
)

// Registry exposes constructors for all repositories required by the service layer. Implementations
// may lazily instantiate underlying clients and should be safe for concurrent use.
type Registry interface {
	Shoppers() ShopperRepository
	Shops() ShopRepository
	Products() ProductRepository
	Carts() CartRepository
	Orders() OrderRepository
	Returns() ReturnRepository
	Reviews() ReviewRepository
	Close(ctx context.Context) error
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ShopperRepository persists shopper accounts. Email is unique per principal kind.
type ShopperRepository interface {
	Create(ctx context.Context, shopper domain.Shopper) error
	Get(ctx context.Context, shopperID string) (domain.Shopper, error)
	FindByEmail(ctx context.Context, email string) (domain.Shopper, error)
}

// ShopRepository persists shops and their aggregate stats.
type ShopRepository interface {
	Create(ctx context.Context, shop domain.Shop) error
	Get(ctx context.Context, shopID string) (domain.Shop, error)
	FindByEmail(ctx context.Context, email string) (domain.Shop, error)
	// IncrementStats atomically adds to the shop counters.
	IncrementStats(ctx context.Context, shopID string, orders int64, sales int64) error
}

// ProductRepository persists products, stock levels and cached rating stats.
type ProductRepository interface {
	Create(ctx context.Context, product domain.Product) error
	Get(ctx context.Context, productID string) (domain.Product, error)
	Update(ctx context.Context, product domain.Product) error
	// SetRatingStats overwrites the derived rating fields.
	SetRatingStats(ctx context.Context, productID string, rating float64, reviewsCount int) error
	IncrementSales(ctx context.Context, productID string, quantity int) error
}

// CartRepository persists one cart per shopper keyed by shopper ID.
type CartRepository interface {
	// Create inserts a new cart and reports a conflict when one already exists.
	Create(ctx context.Context, cart domain.Cart) error
	Get(ctx context.Context, shopperID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) error
	Delete(ctx context.Context, shopperID string) error
}

// StockLine is one product quantity adjusted during order placement or cancellation.
type StockLine struct {
	ProductID string
	Quantity  int
}

// OrderListFilter narrows order listings to a shopper or a shop.
type OrderListFilter struct {
	ShopperID  string
	ShopID     string
	Status     []domain.OrderStatus
	Pagination domain.Pagination
}

// OrderMutation is applied to the current order state inside a transaction. It returns the
// stock lines to restore alongside the status write; an error aborts the transaction.
type OrderMutation func(order *domain.Order) (restock []StockLine, err error)

// OrderRepository persists orders and their line items.
type OrderRepository interface {
	// Place writes the order, its items and its order number, and decrements stock for every line
	// only when each product has enough stock. All writes happen atomically or not at all; a
	// shortfall returns *InsufficientStockError.
	Place(ctx context.Context, order domain.Order, stock []StockLine) error
	Get(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// Mutate reads the order, applies fn and writes the result in one transaction.
	Mutate(ctx context.Context, orderID string, fn OrderMutation) (domain.Order, error)
}

// ReturnListFilter narrows return listings.
type ReturnListFilter struct {
	ShopperID  string
	ShopID     string
	Status     []domain.ReturnStatus
	Pagination domain.Pagination
}

// ReturnRepository persists return requests; at most one per order.
type ReturnRepository interface {
	// Create inserts the return and reports a conflict when the order already has one.
	Create(ctx context.Context, ret domain.Return) error
	Get(ctx context.Context, returnID string) (domain.Return, error)
	FindByOrder(ctx context.Context, orderID string) (domain.Return, error)
	List(ctx context.Context, filter ReturnListFilter) (domain.CursorPage[domain.Return], error)
	Mutate(ctx context.Context, returnID string, fn func(ret *domain.Return) error) (domain.Return, error)
}

// ReviewSort selects the ordering of public review listings.
type ReviewSort string

const (
	ReviewSortNewest  ReviewSort = "newest"
	ReviewSortHelpful ReviewSort = "helpful"
	ReviewSortRating  ReviewSort = "rating"
)

// ReviewListFilter selects a page of approved reviews for a product.
type ReviewListFilter struct {
	ProductID string
	Page      int
	Limit     int
	Sort      ReviewSort
}

// ReviewRepository persists reviews. The (shopper, product, order) triple is unique.
type ReviewRepository interface {
	// Create inserts the review and reports a conflict for a duplicate triple.
	Create(ctx context.Context, review domain.Review) error
	Get(ctx context.Context, reviewID string) (domain.Review, error)
	Update(ctx context.Context, review domain.Review) error
	Delete(ctx context.Context, reviewID string) error
	IncrementHelpful(ctx context.Context, reviewID string) (domain.Review, error)
	ListApproved(ctx context.Context, filter ReviewListFilter) (domain.OffsetPage[domain.Review], error)
	// ApprovedRatings returns the rating of every approved review of the product.
	ApprovedRatings(ctx context.Context, productID string) ([]int, error)
}
