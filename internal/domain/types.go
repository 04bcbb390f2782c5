package domain

import (
	"math"
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps a page of results alongside the token for the following page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// OffsetPage wraps numbered-page results used by public listings.
type OffsetPage[T any] struct {
	Items []T
	Page  int
	Limit int
	Total int
}

// Pages reports how many pages are available for the configured limit.
func (p OffsetPage[T]) Pages() int {
	if p.Limit <= 0 || p.Total <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// PrincipalKind distinguishes the two authenticated actor types.
type PrincipalKind string

const (
	PrincipalShopper PrincipalKind = "shopper"
	PrincipalShop    PrincipalKind = "shop"
)

// Shopper roles.
const (
	RoleShopper = "shopper"
	RoleAdmin   = "admin"
)

// Principal is the authenticated actor resolved once per request.
type Principal struct {
	Kind   PrincipalKind
	ID     string
	Email  string
	Name   string
	Role   string
	Active bool
}

// IsShopper reports whether the principal is a shopper.
func (p Principal) IsShopper() bool { return p.Kind == PrincipalShopper }

// IsShop reports whether the principal is a shop.
func (p Principal) IsShop() bool { return p.Kind == PrincipalShop }

// IsAdmin reports whether the principal is a shopper carrying the admin role.
func (p Principal) IsAdmin() bool { return p.IsShopper() && p.Role == RoleAdmin }

// Shopper is a marketplace customer account.
type Shopper struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal projects the shopper into the request principal representation.
func (s Shopper) Principal() Principal {
	role := s.Role
	if role == "" {
		role = RoleShopper
	}
	return Principal{Kind: PrincipalShopper, ID: s.ID, Email: s.Email, Name: s.Name, Role: role, Active: s.Active}
}

// ShopStats holds aggregate counters maintained after order placement.
type ShopStats struct {
	TotalOrders int64
	TotalSales  int64
}

// Shop is an independently owned storefront.
type Shop struct {
	ID           string
	Email        string
	Name         string
	Description  string
	PasswordHash string
	Active       bool
	Stats        ShopStats
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal projects the shop into the request principal representation.
func (s Shop) Principal() Principal {
	return Principal{Kind: PrincipalShop, ID: s.ID, Email: s.Email, Name: s.Name, Active: s.Active}
}

// ProductStats is derived state; rating and review count are written only by rating recomputation.
type ProductStats struct {
	ViewsCount   int64
	SalesCount   int64
	Rating       float64
	ReviewsCount int
}

// Product is a sellable item owned by a shop.
type Product struct {
	ID            string
	ShopID        string
	Name          string
	Description   string
	Price         int64
	Currency      string
	Images        []string
	StockQuantity int
	Active        bool
	Stats         ProductStats
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PrimaryImage returns the first product image when present.
func (p Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// CartItem is a single product line within a cart.
type CartItem struct {
	ID        string
	ProductID string
	ShopID    string
	Name      string
	Quantity  int
	Options   map[string]string
	UnitPrice int64
	AddedAt   time.Time
	UpdatedAt time.Time
}

// Subtotal returns the line amount.
func (i CartItem) Subtotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// Cart is the single mutable basket owned by a shopper. Its ID equals the shopper ID.
type Cart struct {
	ID        string
	ShopperID string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TotalPrice sums every line subtotal.
func (c Cart) TotalPrice() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.Subtotal()
	}
	return total
}

// TotalItems sums line quantities.
func (c Cart) TotalItems() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// Address is the shipping address snapshot copied onto an order.
type Address struct {
	Recipient  string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

// PaymentStatus records the simulated payment state of an order.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// OrderItem is an immutable snapshot of one purchased line.
type OrderItem struct {
	ID           string
	OrderID      string
	ProductID    string
	ProductName  string
	ProductImage string
	UnitPrice    int64
	Quantity     int
	Subtotal     int64
	Options      map[string]string
}

// StatusChange records one entry of an order or return status history.
type StatusChange struct {
	From      string
	To        string
	ActorID   string
	Forced    bool
	Note      string
	ChangedAt time.Time
}

// Order is an immutable checkout record except for status-dependent fields.
type Order struct {
	ID              string
	OrderNumber     string
	ShopperID       string
	ShopID          string
	Items           []OrderItem
	Subtotal        int64
	Tax             int64
	ShippingFee     int64
	Discount        int64
	Total           int64
	Currency        string
	ShippingAddress Address
	PaymentMethod   string
	PaymentStatus   PaymentStatus
	Status          OrderStatus
	Notes           string
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
	StatusHistory   []StatusChange
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ContainsProduct reports whether any line item references the product.
func (o Order) ContainsProduct(productID string) bool {
	for _, item := range o.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

// ComputeTotal applies total = subtotal - discount + tax + shipping.
func ComputeTotal(subtotal, discount, tax, shipping int64) int64 {
	return subtotal - discount + tax + shipping
}

// ReturnReason enumerates the overall reason codes accepted on return requests.
type ReturnReason string

const (
	ReturnReasonDefective     ReturnReason = "defective"
	ReturnReasonWrongItem     ReturnReason = "wrong_item"
	ReturnReasonWrongSize     ReturnReason = "wrong_size"
	ReturnReasonNotAsDescribe ReturnReason = "not_as_described"
	ReturnReasonChangedMind   ReturnReason = "changed_mind"
	ReturnReasonOther         ReturnReason = "other"
)

// IsValid reports whether the reason is one of the known codes.
func (r ReturnReason) IsValid() bool {
	switch r {
	case ReturnReasonDefective, ReturnReasonWrongItem, ReturnReasonWrongSize,
		ReturnReasonNotAsDescribe, ReturnReasonChangedMind, ReturnReasonOther:
		return true
	}
	return false
}

// ReturnItem is one returned line with its client-echoed price.
type ReturnItem struct {
	ProductID string
	Quantity  int
	Price     int64
	Reason    string
}

// Return is the post-delivery refund request tied one-to-one with an order.
type Return struct {
	ID             string
	OrderID        string
	ShopperID      string
	ShopID         string
	Items          []ReturnItem
	Reason         ReturnReason
	DetailedReason string
	Status         ReturnStatus
	RefundAmount   int64
	AdminNotes     string
	ApprovedAt     *time.Time
	RejectedAt     *time.Time
	CompletedAt    *time.Time
	StatusHistory  []StatusChange
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MaxReturnItemPrice bounds client-echoed item prices, in minor units.
const MaxReturnItemPrice int64 = 1_000_000_000_000

// RefundFor sums price times quantity across the returned items. ok is false when a line or
// the sum would overflow int64, or when an item carries a negative price or quantity.
func RefundFor(items []ReturnItem) (total int64, ok bool) {
	for _, item := range items {
		if item.Price < 0 || item.Quantity < 0 {
			return 0, false
		}
		quantity := int64(item.Quantity)
		if item.Price != 0 && quantity > math.MaxInt64/item.Price {
			return 0, false
		}
		line := item.Price * quantity
		if total > math.MaxInt64-line {
			return 0, false
		}
		total += line
	}
	return total, true
}

// Review is a verified-purchase product review.
type Review struct {
	ID                 string
	ShopperID          string
	ProductID          string
	OrderID            string
	ShopID             string
	Rating             int
	Title              string
	Comment            string
	Images             []string
	IsVerifiedPurchase bool
	IsApproved         bool
	HelpfulCount       int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// RatingSummary aggregates approved review ratings for a product.
type RatingSummary struct {
	Average      float64
	Count        int
	Distribution map[int]int
}

// Readiness states reported by dependency probes.
const (
	ReadinessOK       = "ok"
	ReadinessDegraded = "degraded"
	ReadinessDown     = "down"
)

// DependencyStatus is the outcome of one dependency probe.
type DependencyStatus struct {
	Status  string        `json:"status"`
	Error   string        `json:"error,omitempty"`
	Latency time.Duration `json:"latencyMs"`
}

// ReadinessReport aggregates dependency probes for /readyz.
type ReadinessReport struct {
	Status       string                      `json:"status"`
	Dependencies map[string]DependencyStatus `json:"dependencies"`
	CheckedAt    time.Time                   `json:"checkedAt"`
}
