package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atelier-market/api/internal/platform/auth"
	"github.com/atelier-market/api/internal/services"
)

// ProductHandlers exposes the catalog surface carts, orders and ratings depend on.
type ProductHandlers struct {
	authn    *auth.Authenticator
	products services.ProductService
}

// NewProductHandlers constructs ProductHandlers.
func NewProductHandlers(authn *auth.Authenticator, products services.ProductService) *ProductHandlers {
	return &ProductHandlers{authn: authn, products: products}
}

// Routes registers the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{productID}", h.getProduct)
	r.Group(func(shop chi.Router) {
		shop.Use(h.authn.RequireShop())
		shop.Post("/", h.createProduct)
		shop.Patch("/{productID}", h.updateProduct)
	})
}

type createProductRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Price         int64    `json:"price"`
	Currency      string   `json:"currency"`
	Images        []string `json:"images"`
	StockQuantity int      `json:"stockQuantity"`
}

type updateProductRequest struct {
	Name          *string  `json:"name"`
	Description   *string  `json:"description"`
	Price         *int64   `json:"price"`
	Images        []string `json:"images"`
	StockQuantity *int     `json:"stockQuantity"`
	Active        *bool    `json:"active"`
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.products == nil {
		writeUnavailable(ctx, w, "product")
		return
	}
	productID, ok := pathParam(w, r, chi.URLParam(r, "productID"), "product id")
	if !ok {
		return
	}
	product, err := h.products.GetProduct(ctx, productID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"product": buildProductPayload(product)})
}

func (h *ProductHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.products == nil {
		writeUnavailable(ctx, w, "product")
		return
	}
	shop, ok := principal(w, r)
	if !ok {
		return
	}
	var req createProductRequest
	if !decodeBody(w, r, &req) {
		return
	}
	product, err := h.products.CreateProduct(ctx, services.CreateProductCommand{
		ShopID:        shop.ID,
		Name:          req.Name,
		Description:   req.Description,
		Price:         req.Price,
		Currency:      req.Currency,
		Images:        req.Images,
		StockQuantity: req.StockQuantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"product": buildProductPayload(product)})
}

func (h *ProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.products == nil {
		writeUnavailable(ctx, w, "product")
		return
	}
	shop, ok := principal(w, r)
	if !ok {
		return
	}
	productID, ok := pathParam(w, r, chi.URLParam(r, "productID"), "product id")
	if !ok {
		return
	}
	var req updateProductRequest
	if !decodeBody(w, r, &req) {
		return
	}
	product, err := h.products.UpdateProduct(ctx, services.UpdateProductCommand{
		ShopID:        shop.ID,
		ProductID:     productID,
		Name:          req.Name,
		Description:   req.Description,
		Price:         req.Price,
		Images:        req.Images,
		StockQuantity: req.StockQuantity,
		Active:        req.Active,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"product": buildProductPayload(product)})
}
