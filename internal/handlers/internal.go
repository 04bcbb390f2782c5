package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atelier-market/api/internal/services"
)

// InternalHandlers exposes maintenance endpoints mounted under /internal. Authentication is
// supplied by the router's internal middlewares.
type InternalHandlers struct {
	ratings services.RatingAggregator
}

// NewInternalHandlers constructs InternalHandlers.
func NewInternalHandlers(ratings services.RatingAggregator) *InternalHandlers {
	return &InternalHandlers{ratings: ratings}
}

// Routes registers the internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/products/{productID}/rating:recompute", h.recomputeRating)
}

func (h *InternalHandlers) recomputeRating(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ratings == nil {
		writeUnavailable(ctx, w, "rating")
		return
	}
	productID, ok := pathParam(w, r, chi.URLParam(r, "productID"), "product id")
	if !ok {
		return
	}
	summary, err := h.ratings.Recompute(ctx, productID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"productId":     productID,
		"averageRating": summary.Average,
		"totalReviews":  summary.Count,
	})
}
