package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atelier-market/api/internal/platform/auth"
	"github.com/atelier-market/api/internal/services"
)

// CartHandlers exposes the authenticated shopper's cart.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs handlers enforcing shopper authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{authn: authn, carts: carts}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(h.authn.RequireShopper())
	r.Get("/", h.getCart)
	r.Post("/", h.addItem)
	r.Delete("/", h.clearCart)
	r.Put("/{itemID}", h.updateItem)
	r.Delete("/{itemID}", h.removeItem)
}

type addCartItemRequest struct {
	ProductID string            `json:"productId"`
	Quantity  int               `json:"quantity"`
	Options   map[string]string `json:"options"`
}

type updateCartItemRequest struct {
	Quantity *int              `json:"quantity"`
	Options  map[string]string `json:"options"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	shopper, ok := principal(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.GetOrCreateCart(ctx, shopper.ID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	shopper, ok := principal(w, r)
	if !ok {
		return
	}
	var req addCartItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	cart, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		ShopperID: shopper.ID, ProductID: req.ProductID, Quantity: req.Quantity, Options: req.Options,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	shopper, ok := principal(w, r)
	if !ok {
		return
	}
	itemID, ok := pathParam(w, r, chi.URLParam(r, "itemID"), "item id")
	if !ok {
		return
	}
	var req updateCartItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cart, err := h.carts.UpdateItem(ctx, services.UpdateCartItemCommand{
		ShopperID: shopper.ID, ItemID: itemID, Quantity: req.Quantity, Options: req.Options,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	shopper, ok := principal(w, r)
	if !ok {
		return
	}
	itemID, ok := pathParam(w, r, chi.URLParam(r, "itemID"), "item id")
	if !ok {
		return
	}
	cart, err := h.carts.RemoveItem(ctx, shopper.ID, itemID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	shopper, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.carts.Clear(ctx, shopper.ID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeCart(w http.ResponseWriter, status int, cart services.Cart) {
	w.Header().Set("Cache-Control", "no-store, no-cache, max-age=0, must-revalidate")
	if !cart.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", cart.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	if etag := buildCartETag(cart); etag != "" {
		w.Header().Set("ETag", etag)
	}
	writeJSONResponse(w, status, map[string]any{"cart": buildCartPayload(cart)})
}

func buildCartETag(cart services.Cart) string {
	if cart.ID == "" || cart.UpdatedAt.IsZero() {
		return ""
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", cart.ID, cart.UpdatedAt.UTC().UnixNano())))
	return fmt.Sprintf(`W/"%s"`, hex.EncodeToString(sum[:8]))
}
