package handlers

import (
	"maps"
	"slices"
	"strings"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/services"
)

type principalPayload struct {
	Kind  string `json:"kind"`
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

func buildPrincipalPayload(p domain.Principal) principalPayload {
	return principalPayload{Kind: string(p.Kind), ID: p.ID, Email: p.Email, Name: p.Name, Role: p.Role}
}

type productPayload struct {
	ID            string              `json:"id"`
	ShopID        string              `json:"shopId"`
	Name          string              `json:"name"`
	Description   string              `json:"description,omitempty"`
	Price         int64               `json:"price"`
	Currency      string              `json:"currency"`
	Images        []string            `json:"images"`
	StockQuantity int                 `json:"stockQuantity"`
	Active        bool                `json:"active"`
	Stats         productStatsPayload `json:"stats"`
	CreatedAt     string              `json:"createdAt"`
	UpdatedAt     string              `json:"updatedAt,omitempty"`
}

type productStatsPayload struct {
	ViewsCount   int64   `json:"viewsCount"`
	SalesCount   int64   `json:"salesCount"`
	Rating       float64 `json:"rating"`
	ReviewsCount int     `json:"reviewsCount"`
}

func buildProductPayload(p services.Product) productPayload {
	images := slices.Clone(p.Images)
	if images == nil {
		images = []string{}
	}
	return productPayload{
		ID:            p.ID,
		ShopID:        p.ShopID,
		Name:          p.Name,
		Description:   p.Description,
		Price:         p.Price,
		Currency:      strings.ToUpper(p.Currency),
		Images:        images,
		StockQuantity: p.StockQuantity,
		Active:        p.Active,
		Stats: productStatsPayload{
			ViewsCount:   p.Stats.ViewsCount,
			SalesCount:   p.Stats.SalesCount,
			Rating:       p.Stats.Rating,
			ReviewsCount: p.Stats.ReviewsCount,
		},
		CreatedAt: formatTime(p.CreatedAt),
		UpdatedAt: formatTime(p.UpdatedAt),
	}
}

type cartPayload struct {
	ID         string            `json:"id"`
	ShopperID  string            `json:"shopperId"`
	Items      []cartItemPayload `json:"items"`
	TotalItems int               `json:"totalItems"`
	TotalPrice int64             `json:"totalPrice"`
	UpdatedAt  string            `json:"updatedAt,omitempty"`
}

type cartItemPayload struct {
	ID        string            `json:"id"`
	ProductID string            `json:"productId"`
	ShopID    string            `json:"shopId"`
	Name      string            `json:"name"`
	Quantity  int               `json:"quantity"`
	UnitPrice int64             `json:"unitPrice"`
	Subtotal  int64             `json:"subtotal"`
	Options   map[string]string `json:"options,omitempty"`
	AddedAt   string            `json:"addedAt,omitempty"`
}

func buildCartPayload(cart services.Cart) cartPayload {
	items := make([]cartItemPayload, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemPayload{
			ID:        item.ID,
			ProductID: item.ProductID,
			ShopID:    item.ShopID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal(),
			Options:   maps.Clone(item.Options),
			AddedAt:   formatTime(item.AddedAt),
		})
	}
	return cartPayload{
		ID:         cart.ID,
		ShopperID:  cart.ShopperID,
		Items:      items,
		TotalItems: cart.TotalItems(),
		TotalPrice: cart.TotalPrice(),
		UpdatedAt:  formatTime(cart.UpdatedAt),
	}
}

type addressPayload struct {
	Recipient  string `json:"recipient"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

func (a addressPayload) toDomain() domain.Address {
	return domain.Address{
		Recipient:  strings.TrimSpace(a.Recipient),
		Line1:      strings.TrimSpace(a.Line1),
		Line2:      strings.TrimSpace(a.Line2),
		City:       strings.TrimSpace(a.City),
		State:      strings.TrimSpace(a.State),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(a.Country)),
		Phone:      strings.TrimSpace(a.Phone),
	}
}

func buildAddressPayload(a domain.Address) addressPayload {
	return addressPayload{
		Recipient: a.Recipient, Line1: a.Line1, Line2: a.Line2, City: a.City,
		State: a.State, PostalCode: a.PostalCode, Country: a.Country, Phone: a.Phone,
	}
}

type statusChangePayload struct {
	From      string `json:"from,omitempty"`
	To        string `json:"to"`
	ActorID   string `json:"actorId,omitempty"`
	Forced    bool   `json:"forced,omitempty"`
	Note      string `json:"note,omitempty"`
	ChangedAt string `json:"changedAt"`
}

func buildHistory(history []domain.StatusChange) []statusChangePayload {
	out := make([]statusChangePayload, 0, len(history))
	for _, change := range history {
		out = append(out, statusChangePayload{
			From: change.From, To: change.To, ActorID: change.ActorID, Forced: change.Forced,
			Note: change.Note, ChangedAt: formatTime(change.ChangedAt),
		})
	}
	return out
}

type orderPayload struct {
	ID              string                `json:"id"`
	OrderNumber     string                `json:"orderNumber"`
	ShopperID       string                `json:"shopperId"`
	ShopID          string                `json:"shopId"`
	Status          string                `json:"status"`
	PaymentMethod   string                `json:"paymentMethod"`
	PaymentStatus   string                `json:"paymentStatus"`
	Currency        string                `json:"currency"`
	Subtotal        int64                 `json:"subtotal"`
	Tax             int64                 `json:"tax"`
	ShippingFee     int64                 `json:"shippingFee"`
	Discount        int64                 `json:"discount"`
	Total           int64                 `json:"total"`
	Items           []orderItemPayload    `json:"items"`
	ShippingAddress addressPayload        `json:"shippingAddress"`
	Notes           string                `json:"notes,omitempty"`
	StatusHistory   []statusChangePayload `json:"statusHistory,omitempty"`
	ShippedAt       string                `json:"shippedAt,omitempty"`
	DeliveredAt     string                `json:"deliveredAt,omitempty"`
	CancelledAt     string                `json:"cancelledAt,omitempty"`
	CreatedAt       string                `json:"createdAt"`
	UpdatedAt       string                `json:"updatedAt,omitempty"`
}

type orderItemPayload struct {
	ID           string            `json:"id"`
	ProductID    string            `json:"productId"`
	ProductName  string            `json:"productName"`
	ProductImage string            `json:"productImage,omitempty"`
	UnitPrice    int64             `json:"unitPrice"`
	Quantity     int               `json:"quantity"`
	Subtotal     int64             `json:"subtotal"`
	Options      map[string]string `json:"options,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ID: item.ID, ProductID: item.ProductID, ProductName: item.ProductName, ProductImage: item.ProductImage,
			UnitPrice: item.UnitPrice, Quantity: item.Quantity, Subtotal: item.Subtotal, Options: maps.Clone(item.Options),
		})
	}
	return orderPayload{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		ShopperID:       order.ShopperID,
		ShopID:          order.ShopID,
		Status:          string(order.Status),
		PaymentMethod:   order.PaymentMethod,
		PaymentStatus:   string(order.PaymentStatus),
		Currency:        order.Currency,
		Subtotal:        order.Subtotal,
		Tax:             order.Tax,
		ShippingFee:     order.ShippingFee,
		Discount:        order.Discount,
		Total:           order.Total,
		Items:           items,
		ShippingAddress: buildAddressPayload(order.ShippingAddress),
		Notes:           order.Notes,
		StatusHistory:   buildHistory(order.StatusHistory),
		ShippedAt:       formatTimePtr(order.ShippedAt),
		DeliveredAt:     formatTimePtr(order.DeliveredAt),
		CancelledAt:     formatTimePtr(order.CancelledAt),
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
	}
}

type orderSummaryPayload struct {
	ID          string `json:"id"`
	OrderNumber string `json:"orderNumber"`
	ShopID      string `json:"shopId"`
	Status      string `json:"status"`
	Currency    string `json:"currency"`
	Total       int64  `json:"total"`
	ItemCount   int    `json:"itemCount"`
	CreatedAt   string `json:"createdAt"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	count := 0
	for _, item := range order.Items {
		count += item.Quantity
	}
	return orderSummaryPayload{
		ID: order.ID, OrderNumber: order.OrderNumber, ShopID: order.ShopID, Status: string(order.Status),
		Currency: order.Currency, Total: order.Total, ItemCount: count, CreatedAt: formatTime(order.CreatedAt),
	}
}

type returnItemPayload struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
	Reason    string `json:"reason,omitempty"`
}

type returnPayload struct {
	ID             string                `json:"id"`
	OrderID        string                `json:"orderId"`
	ShopperID      string                `json:"shopperId"`
	ShopID         string                `json:"shopId"`
	Items          []returnItemPayload   `json:"items"`
	Reason         string                `json:"reason"`
	DetailedReason string                `json:"detailedReason,omitempty"`
	Status         string                `json:"status"`
	RefundAmount   int64                 `json:"refundAmount"`
	AdminNotes     string                `json:"adminNotes,omitempty"`
	StatusHistory  []statusChangePayload `json:"statusHistory,omitempty"`
	ApprovedAt     string                `json:"approvedAt,omitempty"`
	RejectedAt     string                `json:"rejectedAt,omitempty"`
	CompletedAt    string                `json:"completedAt,omitempty"`
	CreatedAt      string                `json:"createdAt"`
	UpdatedAt      string                `json:"updatedAt,omitempty"`
}

func buildReturnPayload(ret services.Return) returnPayload {
	items := make([]returnItemPayload, 0, len(ret.Items))
	for _, item := range ret.Items {
		items = append(items, returnItemPayload{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price, Reason: item.Reason})
	}
	return returnPayload{
		ID:             ret.ID,
		OrderID:        ret.OrderID,
		ShopperID:      ret.ShopperID,
		ShopID:         ret.ShopID,
		Items:          items,
		Reason:         string(ret.Reason),
		DetailedReason: ret.DetailedReason,
		Status:         string(ret.Status),
		RefundAmount:   ret.RefundAmount,
		AdminNotes:     ret.AdminNotes,
		StatusHistory:  buildHistory(ret.StatusHistory),
		ApprovedAt:     formatTimePtr(ret.ApprovedAt),
		RejectedAt:     formatTimePtr(ret.RejectedAt),
		CompletedAt:    formatTimePtr(ret.CompletedAt),
		CreatedAt:      formatTime(ret.CreatedAt),
		UpdatedAt:      formatTime(ret.UpdatedAt),
	}
}

type reviewPayload struct {
	ID                 string   `json:"id"`
	ShopperID          string   `json:"shopperId"`
	ProductID          string   `json:"productId"`
	OrderID            string   `json:"orderId"`
	Rating             int      `json:"rating"`
	Title              string   `json:"title,omitempty"`
	Comment            string   `json:"comment,omitempty"`
	Images             []string `json:"images,omitempty"`
	IsVerifiedPurchase bool     `json:"isVerifiedPurchase"`
	IsApproved         bool     `json:"isApproved"`
	HelpfulCount       int      `json:"helpfulCount"`
	CreatedAt          string   `json:"createdAt"`
	UpdatedAt          string   `json:"updatedAt,omitempty"`
}

func buildReviewPayload(review services.Review) reviewPayload {
	return reviewPayload{
		ID:                 review.ID,
		ShopperID:          review.ShopperID,
		ProductID:          review.ProductID,
		OrderID:            review.OrderID,
		Rating:             review.Rating,
		Title:              review.Title,
		Comment:            review.Comment,
		Images:             slices.Clone(review.Images),
		IsVerifiedPurchase: review.IsVerifiedPurchase,
		IsApproved:         review.IsApproved,
		HelpfulCount:       review.HelpfulCount,
		CreatedAt:          formatTime(review.CreatedAt),
		UpdatedAt:          formatTime(review.UpdatedAt),
	}
}

type listResponse[T any] struct {
	Items         []T    `json:"items"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

func buildList[S any, T any](page domain.CursorPage[S], build func(S) T) listResponse[T] {
	items := make([]T, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, build(item))
	}
	return listResponse[T]{Items: items, NextPageToken: page.NextPageToken}
}
