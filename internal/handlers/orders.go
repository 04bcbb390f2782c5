package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/platform/auth"
	"github.com/atelier-market/api/internal/services"
)

// OrderHandlers exposes checkout and fulfilment endpoints for shoppers and shops.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	createLimit func(http.Handler) http.Handler
}

// NewOrderHandlers constructs OrderHandlers. createLimit, when set, guards order creation.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, createLimit func(http.Handler) http.Handler) *OrderHandlers {
	return &OrderHandlers{authn: authn, orders: orders, createLimit: createLimit}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(shopper chi.Router) {
		shopper.Use(h.authn.RequireShopper())
		shopper.With(optional(h.createLimit)...).Post("/", h.createOrder)
		shopper.Get("/", h.listShopperOrders)
	})
	r.Group(func(shop chi.Router) {
		shop.Use(h.authn.RequireShop())
		shop.Get("/shop", h.listShopOrders)
		shop.Put("/{orderID}/status", h.updateStatus)
	})
	r.With(h.authn.RequireAny()).Get("/{orderID}", h.getOrder)
}

type orderLineRequest struct {
	ProductID string            `json:"productId"`
	Quantity  int               `json:"quantity"`
	Options   map[string]string `json:"options"`
}

type createOrderRequest struct {
	ShopID          string             `json:"shopId"`
	Items           []orderLineRequest `json:"items"`
	FromCart        bool               `json:"fromCart"`
	ShippingAddress addressPayload     `json:"shippingAddress"`
	PaymentMethod   string             `json:"paymentMethod"`
	Notes           string             `json:"notes"`
	Tax             int64              `json:"tax"`
	ShippingFee     int64              `json:"shippingFee"`
	Discount        int64              `json:"discount"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Force  bool   `json:"force"`
	Note   string `json:"note"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	shopper, ok := principal(w, r)
	if !ok {
		return
	}
	var req createOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	lines := make([]services.OrderLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, services.OrderLine{ProductID: item.ProductID, Quantity: item.Quantity, Options: item.Options})
	}
	// With no explicit items the cart is the source.
	fromCart := req.FromCart || len(lines) == 0
	order, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		ShopperID:       shopper.ID,
		ShopID:          req.ShopID,
		Items:           lines,
		FromCart:        fromCart,
		ShippingAddress: req.ShippingAddress.toDomain(),
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
		Tax:             req.Tax,
		ShippingFee:     req.ShippingFee,
		Discount:        req.Discount,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/orders/"+order.ID)
	writeJSONResponse(w, http.StatusCreated, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) listShopperOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	shopper, ok := principal(w, r)
	if !ok {
		return
	}
	query, ok := orderListQuery(w, r)
	if !ok {
		return
	}
	page, err := h.orders.ListShopperOrders(ctx, shopper.ID, query)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildList(page, buildOrderSummary))
}

func (h *OrderHandlers) listShopOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	shop, ok := principal(w, r)
	if !ok {
		return
	}
	query, ok := orderListQuery(w, r)
	if !ok {
		return
	}
	page, err := h.orders.ListShopOrders(ctx, shop.ID, query)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildList(page, buildOrderPayload))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, chi.URLParam(r, "orderID"), "order id")
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(ctx, actor, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	shop, ok := principal(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, chi.URLParam(r, "orderID"), "order id")
	if !ok {
		return
	}
	var req updateStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	status, ok := domain.ParseOrderStatus(req.Status)
	if !ok {
		writeServiceError(ctx, w, invalidStatus(req.Status))
		return
	}
	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		ShopID: shop.ID, OrderID: orderID, Status: status, Force: req.Force, Note: req.Note,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func orderListQuery(w http.ResponseWriter, r *http.Request) (services.ListQuery[services.OrderStatus], bool) {
	page, err := listPagination(r)
	if err != nil {
		writePaginationError(r.Context(), w, err)
		return services.ListQuery[services.OrderStatus]{}, false
	}
	statuses, err := parseStatuses(r.URL.Query()["status"], domain.ParseOrderStatus)
	if err != nil {
		writePaginationError(r.Context(), w, err)
		return services.ListQuery[services.OrderStatus]{}, false
	}
	return services.ListQuery[services.OrderStatus]{Status: statuses, Pagination: page}, true
}

func optional(mw func(http.Handler) http.Handler) []func(http.Handler) http.Handler {
	if mw == nil {
		return nil
	}
	return []func(http.Handler) http.Handler{mw}
}
