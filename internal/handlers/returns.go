package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/platform/auth"
	"github.com/atelier-market/api/internal/services"
)

// ReturnHandlers exposes the return workflow.
type ReturnHandlers struct {
	authn       *auth.Authenticator
	returns     services.ReturnService
	createLimit func(http.Handler) http.Handler
}

// NewReturnHandlers constructs ReturnHandlers.
func NewReturnHandlers(authn *auth.Authenticator, returns services.ReturnService, createLimit func(http.Handler) http.Handler) *ReturnHandlers {
	return &ReturnHandlers{authn: authn, returns: returns, createLimit: createLimit}
}

// Routes registers the /returns endpoints.
func (h *ReturnHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(shopper chi.Router) {
		shopper.Use(h.authn.RequireShopper())
		shopper.With(optional(h.createLimit)...).Post("/", h.createReturn)
		shopper.Get("/user", h.listShopperReturns)
	})
	r.Group(func(shop chi.Router) {
		shop.Use(h.authn.RequireShop())
		shop.Get("/shop/{shopID}", h.listShopReturns)
		shop.Put("/{returnID}/status", h.updateStatus)
	})
	r.With(h.authn.RequireAny()).Get("/{returnID}", h.getReturn)
}

type returnItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
	Reason    string `json:"reason"`
}

type createReturnRequest struct {
	OrderID        string              `json:"orderId"`
	Items          []returnItemRequest `json:"items"`
	Reason         string              `json:"reason"`
	DetailedReason string              `json:"detailedReason"`
}

type updateReturnStatusRequest struct {
	Status     string `json:"status"`
	AdminNotes string `json:"adminNotes"`
	Force      bool   `json:"force"`
}

func (h *ReturnHandlers) createReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		writeUnavailable(ctx, w, "return")
		return
	}
	shopper, ok := principal(w, r)
	if !ok {
		return
	}
	var req createReturnRequest
	if !decodeBody(w, r, &req) {
		return
	}
	items := make([]domain.ReturnItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.ReturnItem{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price, Reason: item.Reason})
	}
	ret, err := h.returns.CreateReturn(ctx, services.CreateReturnCommand{
		ShopperID:      shopper.ID,
		OrderID:        req.OrderID,
		Items:          items,
		Reason:         domain.ReturnReason(req.Reason),
		DetailedReason: req.DetailedReason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/returns/"+ret.ID)
	writeJSONResponse(w, http.StatusCreated, map[string]any{"return": buildReturnPayload(ret)})
}

func (h *ReturnHandlers) listShopperReturns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		writeUnavailable(ctx, w, "return")
		return
	}
	shopper, ok := principal(w, r)
	if !ok {
		return
	}
	query, ok := returnListQuery(w, r)
	if !ok {
		return
	}
	page, err := h.returns.ListShopperReturns(ctx, shopper.ID, query)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildList(page, buildReturnPayload))
}

func (h *ReturnHandlers) listShopReturns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		writeUnavailable(ctx, w, "return")
		return
	}
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	shopID, ok := pathParam(w, r, chi.URLParam(r, "shopID"), "shop id")
	if !ok {
		return
	}
	query, ok := returnListQuery(w, r)
	if !ok {
		return
	}
	page, err := h.returns.ListShopReturns(ctx, actor, shopID, query)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildList(page, buildReturnPayload))
}

func (h *ReturnHandlers) getReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		writeUnavailable(ctx, w, "return")
		return
	}
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	returnID, ok := pathParam(w, r, chi.URLParam(r, "returnID"), "return id")
	if !ok {
		return
	}
	ret, err := h.returns.GetReturn(ctx, actor, returnID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"return": buildReturnPayload(ret)})
}

func (h *ReturnHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		writeUnavailable(ctx, w, "return")
		return
	}
	shop, ok := principal(w, r)
	if !ok {
		return
	}
	returnID, ok := pathParam(w, r, chi.URLParam(r, "returnID"), "return id")
	if !ok {
		return
	}
	var req updateReturnStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	status, ok := domain.ParseReturnStatus(req.Status)
	if !ok {
		writeServiceError(ctx, w, invalidStatus(req.Status))
		return
	}
	ret, err := h.returns.UpdateStatus(ctx, services.UpdateReturnStatusCommand{
		ShopID:     shop.ID,
		ReturnID:   returnID,
		Status:     status,
		AdminNotes: req.AdminNotes,
		Force:      req.Force,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"return": buildReturnPayload(ret)})
}

func returnListQuery(w http.ResponseWriter, r *http.Request) (services.ListQuery[services.ReturnStatus], bool) {
	page, err := listPagination(r)
	if err != nil {
		writePaginationError(r.Context(), w, err)
		return services.ListQuery[services.ReturnStatus]{}, false
	}
	statuses, err := parseStatuses(r.URL.Query()["status"], domain.ParseReturnStatus)
	if err != nil {
		writePaginationError(r.Context(), w, err)
		return services.ListQuery[services.ReturnStatus]{}, false
	}
	return services.ListQuery[services.ReturnStatus]{Status: statuses, Pagination: page}, true
}
