package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/atelier-market/api/internal/platform/auth"
	"github.com/atelier-market/api/internal/platform/pagination"
	"github.com/atelier-market/api/internal/services"
)

const (
	defaultReviewPageLimit = 10
	maxReviewPageLimit     = 50
)

// ReviewHandlers exposes review submission, moderation and the public product listing.
type ReviewHandlers struct {
	authn       *auth.Authenticator
	reviews     services.ReviewService
	createLimit func(http.Handler) http.Handler
}

// NewReviewHandlers constructs ReviewHandlers.
func NewReviewHandlers(authn *auth.Authenticator, reviews services.ReviewService, createLimit func(http.Handler) http.Handler) *ReviewHandlers {
	return &ReviewHandlers{authn: authn, reviews: reviews, createLimit: createLimit}
}

// Routes registers the /reviews endpoints.
func (h *ReviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/product/{productID}", h.listProductReviews)
	r.Group(func(shopper chi.Router) {
		shopper.Use(h.authn.RequireShopper())
		shopper.With(optional(h.createLimit)...).Post("/", h.createReview)
		shopper.Post("/images:upload-url", h.requestImageUpload)
		shopper.Patch("/{reviewID}", h.updateReview)
		shopper.Delete("/{reviewID}", h.deleteReview)
		shopper.Post("/{reviewID}/helpful", h.markHelpful)
	})
	r.With(h.authn.RequireShopper("admin")).Put("/{reviewID}/approval", h.moderateReview)
}

type createReviewRequest struct {
	OrderID   string   `json:"orderId"`
	ProductID string   `json:"productId"`
	Rating    int      `json:"rating"`
	Title     string   `json:"title"`
	Comment   string   `json:"comment"`
	Images    []string `json:"images"`
}

type updateReviewRequest struct {
	Rating  *int     `json:"rating"`
	Title   *string  `json:"title"`
	Comment *string  `json:"comment"`
	Images  []string `json:"images"`
}

type moderateReviewRequest struct {
	Approved bool `json:"approved"`
}

type imageUploadRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

type imageUploadResponse struct {
	UploadURL string            `json:"uploadUrl"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ImageURL  string            `json:"imageUrl"`
	ExpiresAt string            `json:"expiresAt"`
}

type reviewPagePayload struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type ratingSummaryPayload struct {
	Average      float64        `json:"average"`
	Count        int            `json:"count"`
	Distribution map[string]int `json:"distribution"`
}

type productReviewsResponse struct {
	Reviews    []reviewPayload      `json:"reviews"`
	Pagination reviewPagePayload    `json:"pagination"`
	Summary    ratingSummaryPayload `json:"summary"`
}

func (h *ReviewHandlers) listProductReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		writeUnavailable(ctx, w, "review")
		return
	}
	productID, ok := pathParam(w, r, chi.URLParam(r, "productID"), "product id")
	if !ok {
		return
	}
	page, err := pagination.ParsePage(r.URL.Query(), pagination.Options{
		DefaultPageSize: defaultReviewPageLimit,
		MaxPageSize:     maxReviewPageLimit,
	})
	if err != nil {
		writePaginationError(ctx, w, err)
		return
	}
	result, err := h.reviews.ListProductReviews(ctx, services.ProductReviewsQuery{
		ProductID: productID,
		Page:      page.Page,
		Limit:     page.Limit,
		Sort:      r.URL.Query().Get("sort"),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	reviews := make([]reviewPayload, 0, len(result.Reviews.Items))
	for _, review := range result.Reviews.Items {
		reviews = append(reviews, buildReviewPayload(review))
	}
	distribution := make(map[string]int, 5)
	for star := 1; star <= 5; star++ {
		distribution[strconv.Itoa(star)] = result.Summary.Distribution[star]
	}
	writeJSONResponse(w, http.StatusOK, productReviewsResponse{
		Reviews: reviews,
		Pagination: reviewPagePayload{
			Page:  result.Reviews.Page,
			Limit: result.Reviews.Limit,
			Total: result.Reviews.Total,
			Pages: result.Reviews.Pages(),
		},
		Summary: ratingSummaryPayload{
			Average:      result.Summary.Average,
			Count:        result.Summary.Count,
			Distribution: distribution,
		},
	})
}

func (h *ReviewHandlers) createReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		writeUnavailable(ctx, w, "review")
		return
	}
	shopper, ok := principal(w, r)
	if !ok {
		return
	}
	var req createReviewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	review, err := h.reviews.CreateReview(ctx, services.CreateReviewCommand{
		ShopperID: shopper.ID,
		OrderID:   req.OrderID,
		ProductID: req.ProductID,
		Rating:    req.Rating,
		Title:     req.Title,
		Comment:   req.Comment,
		Images:    req.Images,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"review": buildReviewPayload(review)})
}

func (h *ReviewHandlers) updateReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		writeUnavailable(ctx, w, "review")
		return
	}
	shopper, ok := principal(w, r)
	if !ok {
		return
	}
	reviewID, ok := pathParam(w, r, chi.URLParam(r, "reviewID"), "review id")
	if !ok {
		return
	}
	var req updateReviewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	review, err := h.reviews.UpdateReview(ctx, services.UpdateReviewCommand{
		ShopperID: shopper.ID,
		ReviewID:  reviewID,
		Rating:    req.Rating,
		Title:     req.Title,
		Comment:   req.Comment,
		Images:    req.Images,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"review": buildReviewPayload(review)})
}

func (h *ReviewHandlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		writeUnavailable(ctx, w, "review")
		return
	}
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	reviewID, ok := pathParam(w, r, chi.URLParam(r, "reviewID"), "review id")
	if !ok {
		return
	}
	if err := h.reviews.DeleteReview(ctx, actor, reviewID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReviewHandlers) moderateReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		writeUnavailable(ctx, w, "review")
		return
	}
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	reviewID, ok := pathParam(w, r, chi.URLParam(r, "reviewID"), "review id")
	if !ok {
		return
	}
	var req moderateReviewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	review, err := h.reviews.ModerateReview(ctx, services.ModerateReviewCommand{Actor: actor, ReviewID: reviewID, Approved: req.Approved})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"review": buildReviewPayload(review)})
}

func (h *ReviewHandlers) markHelpful(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		writeUnavailable(ctx, w, "review")
		return
	}
	shopper, ok := principal(w, r)
	if !ok {
		return
	}
	reviewID, ok := pathParam(w, r, chi.URLParam(r, "reviewID"), "review id")
	if !ok {
		return
	}
	review, err := h.reviews.MarkHelpful(ctx, shopper.ID, reviewID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"review": buildReviewPayload(review)})
}

func (h *ReviewHandlers) requestImageUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		writeUnavailable(ctx, w, "review")
		return
	}
	shopper, ok := principal(w, r)
	if !ok {
		return
	}
	var req imageUploadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	upload, err := h.reviews.RequestImageUpload(ctx, services.ImageUploadCommand{
		ShopperID:   shopper.ID,
		FileName:    req.FileName,
		ContentType: req.ContentType,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, imageUploadResponse{
		UploadURL: upload.UploadURL,
		Method:    upload.Method,
		Headers:   upload.Headers,
		ImageURL:  upload.ImageURL,
		ExpiresAt: formatTime(upload.ExpiresAt),
	})
}
