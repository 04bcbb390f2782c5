package firestore

import (
	"maps"
	"slices"
	"time"

	domain "github.com/atelier-market/api/internal/domain"
)

type shopperDocument struct {
	Email        string    `firestore:"email"`
	Name         string    `firestore:"name"`
	PasswordHash string    `firestore:"passwordHash"`
	Role         string    `firestore:"role"`
	Active       bool      `firestore:"active"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func newShopperDocument(s domain.Shopper) shopperDocument {
	return shopperDocument{Email: s.Email, Name: s.Name, PasswordHash: s.PasswordHash, Role: s.Role, Active: s.Active, CreatedAt: s.CreatedAt.UTC(), UpdatedAt: s.UpdatedAt.UTC()}
}

func (d shopperDocument) toDomain(id string) domain.Shopper {
	return domain.Shopper{ID: id, Email: d.Email, Name: d.Name, PasswordHash: d.PasswordHash, Role: d.Role, Active: d.Active, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}
}

type shopDocument struct {
	Email        string    `firestore:"email"`
	Name         string    `firestore:"name"`
	Description  string    `firestore:"description"`
	PasswordHash string    `firestore:"passwordHash"`
	Active       bool      `firestore:"active"`
	TotalOrders  int64     `firestore:"totalOrders"`
	TotalSales   int64     `firestore:"totalSales"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func newShopDocument(s domain.Shop) shopDocument {
	return shopDocument{
		Email: s.Email, Name: s.Name, Description: s.Description, PasswordHash: s.PasswordHash, Active: s.Active,
		TotalOrders: s.Stats.TotalOrders, TotalSales: s.Stats.TotalSales,
		CreatedAt: s.CreatedAt.UTC(), UpdatedAt: s.UpdatedAt.UTC(),
	}
}

func (d shopDocument) toDomain(id string) domain.Shop {
	return domain.Shop{
		ID: id, Email: d.Email, Name: d.Name, Description: d.Description, PasswordHash: d.PasswordHash, Active: d.Active,
		Stats:     domain.ShopStats{TotalOrders: d.TotalOrders, TotalSales: d.TotalSales},
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

// emailIndexDocument reserves an address per principal kind; its ID is "<kind>:<email>".
type emailIndexDocument struct {
	PrincipalID string    `firestore:"principalId"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

type productDocument struct {
	ShopID        string    `firestore:"shopId"`
	Name          string    `firestore:"name"`
	Description   string    `firestore:"description"`
	Price         int64     `firestore:"price"`
	Currency      string    `firestore:"currency"`
	Images        []string  `firestore:"images"`
	StockQuantity int       `firestore:"stockQuantity"`
	Active        bool      `firestore:"active"`
	ViewsCount    int64     `firestore:"viewsCount"`
	SalesCount    int64     `firestore:"salesCount"`
	Rating        float64   `firestore:"rating"`
	ReviewsCount  int       `firestore:"reviewsCount"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func newProductDocument(p domain.Product) productDocument {
	return productDocument{
		ShopID: p.ShopID, Name: p.Name, Description: p.Description, Price: p.Price, Currency: p.Currency,
		Images: slices.Clone(p.Images), StockQuantity: p.StockQuantity, Active: p.Active,
		ViewsCount: p.Stats.ViewsCount, SalesCount: p.Stats.SalesCount, Rating: p.Stats.Rating, ReviewsCount: p.Stats.ReviewsCount,
		CreatedAt: p.CreatedAt.UTC(), UpdatedAt: p.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID: id, ShopID: d.ShopID, Name: d.Name, Description: d.Description, Price: d.Price, Currency: d.Currency,
		Images: d.Images, StockQuantity: d.StockQuantity, Active: d.Active,
		Stats:     domain.ProductStats{ViewsCount: d.ViewsCount, SalesCount: d.SalesCount, Rating: d.Rating, ReviewsCount: d.ReviewsCount},
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

type cartItemDocument struct {
	ID        string            `firestore:"id"`
	ProductID string            `firestore:"productId"`
	ShopID    string            `firestore:"shopId"`
	Name      string            `firestore:"name"`
	Quantity  int               `firestore:"quantity"`
	Options   map[string]string `firestore:"options,omitempty"`
	UnitPrice int64             `firestore:"unitPrice"`
	AddedAt   time.Time         `firestore:"addedAt"`
	UpdatedAt time.Time         `firestore:"updatedAt"`
}

type cartDocument struct {
	ShopperID string             `firestore:"shopperId"`
	Items     []cartItemDocument `firestore:"items"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

func newCartDocument(c domain.Cart) cartDocument {
	items := make([]cartItemDocument, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, cartItemDocument{
			ID: it.ID, ProductID: it.ProductID, ShopID: it.ShopID, Name: it.Name, Quantity: it.Quantity,
			Options: maps.Clone(it.Options), UnitPrice: it.UnitPrice, AddedAt: it.AddedAt.UTC(), UpdatedAt: it.UpdatedAt.UTC(),
		})
	}
	return cartDocument{ShopperID: c.ShopperID, Items: items, CreatedAt: c.CreatedAt.UTC(), UpdatedAt: c.UpdatedAt.UTC()}
}

func (d cartDocument) toDomain(id string) domain.Cart {
	items := make([]domain.CartItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, domain.CartItem{
			ID: it.ID, ProductID: it.ProductID, ShopID: it.ShopID, Name: it.Name, Quantity: it.Quantity,
			Options: it.Options, UnitPrice: it.UnitPrice, AddedAt: it.AddedAt, UpdatedAt: it.UpdatedAt,
		})
	}
	return domain.Cart{ID: id, ShopperID: d.ShopperID, Items: items, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}
}

type addressDocument struct {
	Recipient  string `firestore:"recipient"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state,omitempty"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
	Phone      string `firestore:"phone,omitempty"`
}

type orderItemDocument struct {
	ID           string            `firestore:"id"`
	ProductID    string            `firestore:"productId"`
	ProductName  string            `firestore:"productName"`
	ProductImage string            `firestore:"productImage,omitempty"`
	UnitPrice    int64             `firestore:"unitPrice"`
	Quantity     int               `firestore:"quantity"`
	Subtotal     int64             `firestore:"subtotal"`
	Options      map[string]string `firestore:"options,omitempty"`
}

type statusChangeDocument struct {
	From      string    `firestore:"from"`
	To        string    `firestore:"to"`
	ActorID   string    `firestore:"actorId"`
	Forced    bool      `firestore:"forced"`
	Note      string    `firestore:"note,omitempty"`
	ChangedAt time.Time `firestore:"changedAt"`
}

func newHistory(changes []domain.StatusChange) []statusChangeDocument {
	out := make([]statusChangeDocument, 0, len(changes))
	for _, c := range changes {
		out = append(out, statusChangeDocument{From: c.From, To: c.To, ActorID: c.ActorID, Forced: c.Forced, Note: c.Note, ChangedAt: c.ChangedAt.UTC()})
	}
	return out
}

func historyToDomain(docs []statusChangeDocument) []domain.StatusChange {
	out := make([]domain.StatusChange, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.StatusChange{From: d.From, To: d.To, ActorID: d.ActorID, Forced: d.Forced, Note: d.Note, ChangedAt: d.ChangedAt})
	}
	return out
}

type orderDocument struct {
	OrderNumber     string                 `firestore:"orderNumber"`
	ShopperID       string                 `firestore:"shopperId"`
	ShopID          string                 `firestore:"shopId"`
	Items           []orderItemDocument    `firestore:"items"`
	Subtotal        int64                  `firestore:"subtotal"`
	Tax             int64                  `firestore:"tax"`
	ShippingFee     int64                  `firestore:"shippingFee"`
	Discount        int64                  `firestore:"discount"`
	Total           int64                  `firestore:"total"`
	Currency        string                 `firestore:"currency"`
	ShippingAddress addressDocument        `firestore:"shippingAddress"`
	PaymentMethod   string                 `firestore:"paymentMethod"`
	PaymentStatus   string                 `firestore:"paymentStatus"`
	Status          string                 `firestore:"status"`
	Notes           string                 `firestore:"notes,omitempty"`
	ShippedAt       *time.Time             `firestore:"shippedAt"`
	DeliveredAt     *time.Time             `firestore:"deliveredAt"`
	CancelledAt     *time.Time             `firestore:"cancelledAt"`
	StatusHistory   []statusChangeDocument `firestore:"statusHistory"`
	CreatedAt       time.Time              `firestore:"createdAt"`
	UpdatedAt       time.Time              `firestore:"updatedAt"`
}

func newOrderDocument(o domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemDocument{
			ID: it.ID, ProductID: it.ProductID, ProductName: it.ProductName, ProductImage: it.ProductImage,
			UnitPrice: it.UnitPrice, Quantity: it.Quantity, Subtotal: it.Subtotal, Options: maps.Clone(it.Options),
		})
	}
	a := o.ShippingAddress
	return orderDocument{
		OrderNumber: o.OrderNumber, ShopperID: o.ShopperID, ShopID: o.ShopID, Items: items,
		Subtotal: o.Subtotal, Tax: o.Tax, ShippingFee: o.ShippingFee, Discount: o.Discount, Total: o.Total, Currency: o.Currency,
		ShippingAddress: addressDocument{Recipient: a.Recipient, Line1: a.Line1, Line2: a.Line2, City: a.City, State: a.State, PostalCode: a.PostalCode, Country: a.Country, Phone: a.Phone},
		PaymentMethod:   o.PaymentMethod, PaymentStatus: string(o.PaymentStatus), Status: string(o.Status), Notes: o.Notes,
		ShippedAt: utcPtr(o.ShippedAt), DeliveredAt: utcPtr(o.DeliveredAt), CancelledAt: utcPtr(o.CancelledAt),
		StatusHistory: newHistory(o.StatusHistory), CreatedAt: o.CreatedAt.UTC(), UpdatedAt: o.UpdatedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, domain.OrderItem{
			ID: it.ID, OrderID: id, ProductID: it.ProductID, ProductName: it.ProductName, ProductImage: it.ProductImage,
			UnitPrice: it.UnitPrice, Quantity: it.Quantity, Subtotal: it.Subtotal, Options: it.Options,
		})
	}
	a := d.ShippingAddress
	return domain.Order{
		ID: id, OrderNumber: d.OrderNumber, ShopperID: d.ShopperID, ShopID: d.ShopID, Items: items,
		Subtotal: d.Subtotal, Tax: d.Tax, ShippingFee: d.ShippingFee, Discount: d.Discount, Total: d.Total, Currency: d.Currency,
		ShippingAddress: domain.Address{Recipient: a.Recipient, Line1: a.Line1, Line2: a.Line2, City: a.City, State: a.State, PostalCode: a.PostalCode, Country: a.Country, Phone: a.Phone},
		PaymentMethod:   d.PaymentMethod, PaymentStatus: domain.PaymentStatus(d.PaymentStatus), Status: domain.OrderStatus(d.Status), Notes: d.Notes,
		ShippedAt: d.ShippedAt, DeliveredAt: d.DeliveredAt, CancelledAt: d.CancelledAt,
		StatusHistory: historyToDomain(d.StatusHistory), CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

type orderNumberDocument struct {
	OrderID   string    `firestore:"orderId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type returnItemDocument struct {
	ProductID string `firestore:"productId"`
	Quantity  int    `firestore:"quantity"`
	Price     int64  `firestore:"price"`
	Reason    string `firestore:"reason,omitempty"`
}

type returnDocument struct {
	OrderID        string                 `firestore:"orderId"`
	ShopperID      string                 `firestore:"shopperId"`
	ShopID         string                 `firestore:"shopId"`
	Items          []returnItemDocument   `firestore:"items"`
	Reason         string                 `firestore:"reason"`
	DetailedReason string                 `firestore:"detailedReason,omitempty"`
	Status         string                 `firestore:"status"`
	RefundAmount   int64                  `firestore:"refundAmount"`
	AdminNotes     string                 `firestore:"adminNotes,omitempty"`
	ApprovedAt     *time.Time             `firestore:"approvedAt"`
	RejectedAt     *time.Time             `firestore:"rejectedAt"`
	CompletedAt    *time.Time             `firestore:"completedAt"`
	StatusHistory  []statusChangeDocument `firestore:"statusHistory"`
	CreatedAt      time.Time              `firestore:"createdAt"`
	UpdatedAt      time.Time              `firestore:"updatedAt"`
}

func newReturnDocument(r domain.Return) returnDocument {
	items := make([]returnItemDocument, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, returnItemDocument{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price, Reason: it.Reason})
	}
	return returnDocument{
		OrderID: r.OrderID, ShopperID: r.ShopperID, ShopID: r.ShopID, Items: items, Reason: string(r.Reason),
		DetailedReason: r.DetailedReason, Status: string(r.Status), RefundAmount: r.RefundAmount, AdminNotes: r.AdminNotes,
		ApprovedAt: utcPtr(r.ApprovedAt), RejectedAt: utcPtr(r.RejectedAt), CompletedAt: utcPtr(r.CompletedAt),
		StatusHistory: newHistory(r.StatusHistory), CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (d returnDocument) toDomain(id string) domain.Return {
	items := make([]domain.ReturnItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, domain.ReturnItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price, Reason: it.Reason})
	}
	return domain.Return{
		ID: id, OrderID: d.OrderID, ShopperID: d.ShopperID, ShopID: d.ShopID, Items: items, Reason: domain.ReturnReason(d.Reason),
		DetailedReason: d.DetailedReason, Status: domain.ReturnStatus(d.Status), RefundAmount: d.RefundAmount, AdminNotes: d.AdminNotes,
		ApprovedAt: d.ApprovedAt, RejectedAt: d.RejectedAt, CompletedAt: d.CompletedAt,
		StatusHistory: historyToDomain(d.StatusHistory), CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

type reviewDocument struct {
	ShopperID          string    `firestore:"shopperId"`
	ProductID          string    `firestore:"productId"`
	OrderID            string    `firestore:"orderId"`
	ShopID             string    `firestore:"shopId"`
	Rating             int       `firestore:"rating"`
	Title              string    `firestore:"title,omitempty"`
	Comment            string    `firestore:"comment,omitempty"`
	Images             []string  `firestore:"images"`
	IsVerifiedPurchase bool      `firestore:"isVerifiedPurchase"`
	IsApproved         bool      `firestore:"isApproved"`
	HelpfulCount       int       `firestore:"helpfulCount"`
	CreatedAt          time.Time `firestore:"createdAt"`
	UpdatedAt          time.Time `firestore:"updatedAt"`
}

func newReviewDocument(r domain.Review) reviewDocument {
	return reviewDocument{
		ShopperID: r.ShopperID, ProductID: r.ProductID, OrderID: r.OrderID, ShopID: r.ShopID, Rating: r.Rating,
		Title: r.Title, Comment: r.Comment, Images: slices.Clone(r.Images), IsVerifiedPurchase: r.IsVerifiedPurchase,
		IsApproved: r.IsApproved, HelpfulCount: r.HelpfulCount, CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (d reviewDocument) toDomain(id string) domain.Review {
	return domain.Review{
		ID: id, ShopperID: d.ShopperID, ProductID: d.ProductID, OrderID: d.OrderID, ShopID: d.ShopID, Rating: d.Rating,
		Title: d.Title, Comment: d.Comment, Images: d.Images, IsVerifiedPurchase: d.IsVerifiedPurchase,
		IsApproved: d.IsApproved, HelpfulCount: d.HelpfulCount, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

type reviewKeyDocument struct {
	ReviewID string `firestore:"reviewId"`
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
