package services

import (
	"context"
	"time"

	domain "github.com/atelier-market/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination    = domain.Pagination
	Principal     = domain.Principal
	Shopper       = domain.Shopper
	Shop          = domain.Shop
	Product       = domain.Product
	Cart          = domain.Cart
	CartItem      = domain.CartItem
	Order         = domain.Order
	OrderItem     = domain.OrderItem
	OrderStatus   = domain.OrderStatus
	Address       = domain.Address
	Return        = domain.Return
	ReturnItem    = domain.ReturnItem
	ReturnStatus  = domain.ReturnStatus
	Review        = domain.Review
	RatingSummary = domain.RatingSummary
)

// Logger receives structured service events. Event names ending in ".failed" are errors and
// ".forced" or ".skipped" are warnings.
type Logger func(ctx context.Context, event string, fields map[string]any)

// AuthService registers and authenticates both principal kinds and resolves principals for the
// auth middleware.
type AuthService interface {
	RegisterShopper(ctx context.Context, cmd RegisterCommand) (AuthResult, error)
	LoginShopper(ctx context.Context, cmd LoginCommand) (AuthResult, error)
	RegisterShop(ctx context.Context, cmd RegisterCommand) (AuthResult, error)
	LoginShop(ctx context.Context, cmd LoginCommand) (AuthResult, error)
	LookupShopper(ctx context.Context, id string) (Principal, error)
	LookupShop(ctx context.Context, id string) (Principal, error)
}

// RegisterCommand creates a shopper or shop account.
type RegisterCommand struct {
	Email       string
	Password    string
	Name        string
	Description string
}

// LoginCommand authenticates with email and password.
type LoginCommand struct {
	Email    string
	Password string
}

// AuthResult carries the issued token and the principal it represents.
type AuthResult struct {
	Principal Principal
	Token     string
	ExpiresAt time.Time
}

// ProductService manages the minimal catalog surface needed by carts, orders and ratings.
type ProductService interface {
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
}

// CreateProductCommand lists a new product for a shop.
type CreateProductCommand struct {
	ShopID        string
	Name          string
	Description   string
	Price         int64
	Currency      string
	Images        []string
	StockQuantity int
}

// UpdateProductCommand patches catalog fields; nil fields are left untouched.
type UpdateProductCommand struct {
	ShopID        string
	ProductID     string
	Name          *string
	Description   *string
	Price         *int64
	Images        []string
	StockQuantity *int
	Active        *bool
}

// CartService manages the single cart of a shopper.
type CartService interface {
	GetOrCreateCart(ctx context.Context, shopperID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, shopperID, itemID string) (Cart, error)
	Clear(ctx context.Context, shopperID string) error
}

// AddCartItemCommand adds a product line or merges into the existing line for the product.
type AddCartItemCommand struct {
	ShopperID string
	ProductID string
	Quantity  int
	Options   map[string]string
}

// UpdateCartItemCommand changes the quantity and/or options of an existing line.
type UpdateCartItemCommand struct {
	ShopperID string
	ItemID    string
	Quantity  *int
	Options   map[string]string
}

// OrderService orchestrates checkout and the order status machine.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, actor Principal, orderID string) (Order, error)
	ListShopperOrders(ctx context.Context, shopperID string, query ListQuery[OrderStatus]) (domain.CursorPage[Order], error)
	ListShopOrders(ctx context.Context, shopID string, query ListQuery[OrderStatus]) (domain.CursorPage[Order], error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
}

// OrderLine is a requested product and quantity.
type OrderLine struct {
	ProductID string
	Quantity  int
	Options   map[string]string
}

// CreateOrderCommand places an order for a single shop. With FromCart the lines are taken from
// the shopper's cart and the cart is cleared after a successful write.
type CreateOrderCommand struct {
	ShopperID       string
	ShopID          string
	Items           []OrderLine
	FromCart        bool
	ShippingAddress Address
	PaymentMethod   string
	Notes           string
	Tax             int64
	ShippingFee     int64
	Discount        int64
}

// ListQuery filters list endpoints by status and carries paging inputs.
type ListQuery[S ~string] struct {
	Status     []S
	Pagination Pagination
}

// UpdateOrderStatusCommand moves an order; Force bypasses the transition table.
type UpdateOrderStatusCommand struct {
	ShopID  string
	OrderID string
	Status  OrderStatus
	Force   bool
	Note    string
}

// ReturnService implements the post-delivery return workflow.
type ReturnService interface {
	CreateReturn(ctx context.Context, cmd CreateReturnCommand) (Return, error)
	GetReturn(ctx context.Context, actor Principal, returnID string) (Return, error)
	ListShopperReturns(ctx context.Context, shopperID string, query ListQuery[ReturnStatus]) (domain.CursorPage[Return], error)
	ListShopReturns(ctx context.Context, actor Principal, shopID string, query ListQuery[ReturnStatus]) (domain.CursorPage[Return], error)
	UpdateStatus(ctx context.Context, cmd UpdateReturnStatusCommand) (Return, error)
}

// CreateReturnCommand requests a return for a delivered order.
type CreateReturnCommand struct {
	ShopperID      string
	OrderID        string
	Items          []ReturnItem
	Reason         domain.ReturnReason
	DetailedReason string
}

// UpdateReturnStatusCommand moves a return; Force bypasses the transition table.
type UpdateReturnStatusCommand struct {
	ShopID     string
	ReturnID   string
	Status     ReturnStatus
	AdminNotes string
	Force      bool
}

// ReviewService manages verified-purchase reviews.
type ReviewService interface {
	CreateReview(ctx context.Context, cmd CreateReviewCommand) (Review, error)
	UpdateReview(ctx context.Context, cmd UpdateReviewCommand) (Review, error)
	DeleteReview(ctx context.Context, actor Principal, reviewID string) error
	ModerateReview(ctx context.Context, cmd ModerateReviewCommand) (Review, error)
	MarkHelpful(ctx context.Context, shopperID, reviewID string) (Review, error)
	ListProductReviews(ctx context.Context, query ProductReviewsQuery) (ProductReviews, error)
	RequestImageUpload(ctx context.Context, cmd ImageUploadCommand) (ImageUpload, error)
}

// CreateReviewCommand submits a review for a product of a delivered order.
type CreateReviewCommand struct {
	ShopperID string
	OrderID   string
	ProductID string
	Rating    int
	Title     string
	Comment   string
	Images    []string
}

// UpdateReviewCommand edits the author's review; nil fields are left untouched.
type UpdateReviewCommand struct {
	ShopperID string
	ReviewID  string
	Rating    *int
	Title     *string
	Comment   *string
	Images    []string
}

// ModerateReviewCommand sets the approval flag. Only admin shoppers may moderate.
type ModerateReviewCommand struct {
	Actor    Principal
	ReviewID string
	Approved bool
}

// ProductReviewsQuery selects a page of approved reviews.
type ProductReviewsQuery struct {
	ProductID string
	Page      int
	Limit     int
	Sort      string
}

// ProductReviews is a review page with the product rating summary.
type ProductReviews struct {
	Reviews domain.OffsetPage[Review]
	Summary RatingSummary
}

// ImageUploadCommand requests a signed URL for one review image.
type ImageUploadCommand struct {
	ShopperID   string
	FileName    string
	ContentType string
}

// ImageUpload is a signed PUT target for a review image.
type ImageUpload struct {
	UploadURL string
	Method    string
	Headers   map[string]string
	ImageURL  string
	ExpiresAt time.Time
}

// RatingAggregator recomputes the cached rating fields of a product.
type RatingAggregator interface {
	Recompute(ctx context.Context, productID string) (RatingSummary, error)
}
