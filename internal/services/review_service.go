package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/platform/events"
	"github.com/atelier-market/api/internal/platform/storage"
	"github.com/atelier-market/api/internal/platform/textutil"
	"github.com/atelier-market/api/internal/repositories"
)

const (
	reviewIDPrefix       = "rev_"
	maxReviewTitleLength = 120
	maxReviewComment     = 2000
	maxReviewImages      = 5
	defaultReviewLimit   = 10
	maxReviewLimit       = 50
	maxReviewPage        = 10000
)

// ReviewImageSigner issues signed upload targets for review images.
type ReviewImageSigner interface {
	SignReviewImage(ctx context.Context, shopperID, uploadID, fileName, contentType string) (storage.UploadURL, error)
}

// ReviewServiceDeps bundles collaborators required to construct a ReviewService.
type ReviewServiceDeps struct {
	Reviews  repositories.ReviewRepository
	Orders   repositories.OrderRepository
	Products repositories.ProductRepository
	Ratings  RatingAggregator
	Images   ReviewImageSigner
	Events   events.Publisher
	// RequireModeration holds new reviews unapproved until an admin approves them.
	RequireModeration bool
	Clock             func() time.Time
	IDGen             func() string
	Logger            Logger
}

type reviewService struct {
	reviews           repositories.ReviewRepository
	orders            repositories.OrderRepository
	products          repositories.ProductRepository
	ratings           RatingAggregator
	images            ReviewImageSigner
	requireModeration bool
	now               func() time.Time
	newID             func() string
	log               Logger
	after             afterCommit
}

// NewReviewService wires dependencies into a concrete ReviewService implementation.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Reviews == nil || deps.Orders == nil || deps.Products == nil {
		return nil, errors.New("review service: review, order and product repositories are required")
	}
	if deps.Ratings == nil {
		return nil, errors.New("review service: rating aggregator is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return newID(reviewIDPrefix) }
	}
	now := func() time.Time { return clock().UTC() }
	after := newAfterCommit(deps.Logger, deps.Events, nil, now)
	return &reviewService{
		reviews:           deps.Reviews,
		orders:            deps.Orders,
		products:          deps.Products,
		ratings:           deps.Ratings,
		images:            deps.Images,
		requireModeration: deps.RequireModeration,
		now:               now,
		newID:             idGen,
		log:               after.log,
		after:             after,
	}, nil
}

func (s *reviewService) CreateReview(ctx context.Context, cmd CreateReviewCommand) (Review, error) {
	if cmd.OrderID == "" || cmd.ProductID == "" {
		return Review{}, validationError("orderId and productId are required")
	}
	if err := validateRating(cmd.Rating); err != nil {
		return Review{}, err
	}
	images, err := normaliseReviewImages(cmd.Images)
	if err != nil {
		return Review{}, err
	}

	order, err := s.orders.Get(ctx, cmd.OrderID)
	if err != nil {
		return Review{}, mapRepoError("reviews.order", err)
	}
	if order.ShopperID != cmd.ShopperID {
		return Review{}, fmt.Errorf("%w: order belongs to another shopper", ErrForbidden)
	}
	if order.Status != domain.OrderStatusDelivered {
		return Review{}, fmt.Errorf("%w: only delivered orders can be reviewed (status %s)", ErrInvalidState, order.Status)
	}
	if !order.ContainsProduct(cmd.ProductID) {
		return Review{}, fmt.Errorf("%w: product %s is not part of order %s", ErrForbidden, cmd.ProductID, order.ID)
	}

	now := s.now()
	review := domain.Review{
		ID:                 s.newID(),
		ShopperID:          cmd.ShopperID,
		ProductID:          cmd.ProductID,
		OrderID:            order.ID,
		ShopID:             order.ShopID,
		Rating:             cmd.Rating,
		Title:              textutil.PlainText(cmd.Title, maxReviewTitleLength),
		Comment:            textutil.PlainText(cmd.Comment, maxReviewComment),
		Images:             images,
		IsVerifiedPurchase: true,
		IsApproved:         !s.requireModeration,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.reviews.Create(ctx, review); err != nil {
		return Review{}, mapRepoError("reviews.create", err)
	}
	s.changed(ctx, review, "created")
	return review, nil
}

func (s *reviewService) UpdateReview(ctx context.Context, cmd UpdateReviewCommand) (Review, error) {
	review, err := s.reviews.Get(ctx, cmd.ReviewID)
	if err != nil {
		return Review{}, mapRepoError("reviews.get", err)
	}
	if review.ShopperID != cmd.ShopperID {
		return Review{}, fmt.Errorf("%w: review belongs to another shopper", ErrForbidden)
	}
	if cmd.Rating != nil {
		if err := validateRating(*cmd.Rating); err != nil {
			return Review{}, err
		}
		review.Rating = *cmd.Rating
	}
	if cmd.Title != nil {
		review.Title = textutil.PlainText(*cmd.Title, maxReviewTitleLength)
	}
	if cmd.Comment != nil {
		review.Comment = textutil.PlainText(*cmd.Comment, maxReviewComment)
	}
	if cmd.Images != nil {
		images, err := normaliseReviewImages(cmd.Images)
		if err != nil {
			return Review{}, err
		}
		review.Images = images
	}
	review.UpdatedAt = s.now()
	if err := s.reviews.Update(ctx, review); err != nil {
		return Review{}, mapRepoError("reviews.update", err)
	}
	s.changed(ctx, review, "updated")
	return review, nil
}

func (s *reviewService) DeleteReview(ctx context.Context, actor Principal, reviewID string) error {
	review, err := s.reviews.Get(ctx, reviewID)
	if err != nil {
		return mapRepoError("reviews.get", err)
	}
	if !actor.IsAdmin() && !(actor.IsShopper() && actor.ID == review.ShopperID) {
		return fmt.Errorf("%w: review belongs to another shopper", ErrForbidden)
	}
	if err := s.reviews.Delete(ctx, reviewID); err != nil {
		return mapRepoError("reviews.delete", err)
	}
	s.changed(ctx, review, "deleted")
	return nil
}

func (s *reviewService) ModerateReview(ctx context.Context, cmd ModerateReviewCommand) (Review, error) {
	if !cmd.Actor.IsAdmin() {
		return Review{}, fmt.Errorf("%w: moderation requires the admin role", ErrForbidden)
	}
	review, err := s.reviews.Get(ctx, cmd.ReviewID)
	if err != nil {
		return Review{}, mapRepoError("reviews.get", err)
	}
	if review.IsApproved == cmd.Approved {
		return review, nil
	}
	review.IsApproved = cmd.Approved
	review.UpdatedAt = s.now()
	if err := s.reviews.Update(ctx, review); err != nil {
		return Review{}, mapRepoError("reviews.moderate", err)
	}
	s.log(ctx, "review.moderated", map[string]any{"reviewId": review.ID, "approved": review.IsApproved, "actorId": cmd.Actor.ID})
	s.changed(ctx, review, "moderated")
	return review, nil
}

func (s *reviewService) MarkHelpful(ctx context.Context, shopperID, reviewID string) (Review, error) {
	if shopperID == "" {
		return Review{}, fmt.Errorf("%w: shopper required", ErrUnauthenticated)
	}
	review, err := s.reviews.IncrementHelpful(ctx, reviewID)
	if err != nil {
		return Review{}, mapRepoError("reviews.helpful", err)
	}
	return review, nil
}

func (s *reviewService) ListProductReviews(ctx context.Context, query ProductReviewsQuery) (ProductReviews, error) {
	sort, err := parseReviewSort(query.Sort)
	if err != nil {
		return ProductReviews{}, err
	}
	if _, err := s.products.Get(ctx, query.ProductID); err != nil {
		return ProductReviews{}, mapRepoError("reviews.product", err)
	}
	if query.Page > maxReviewPage {
		return ProductReviews{}, fmt.Errorf("%w: page must be at most %d", ErrValidation, maxReviewPage)
	}
	page := max(query.Page, 1)
	limit := query.Limit
	if limit <= 0 {
		limit = defaultReviewLimit
	}
	limit = min(limit, maxReviewLimit)

	reviews, err := s.reviews.ListApproved(ctx, repositories.ReviewListFilter{
		ProductID: query.ProductID, Page: page, Limit: limit, Sort: sort,
	})
	if err != nil {
		return ProductReviews{}, mapRepoError("reviews.list", err)
	}
	ratings, err := s.reviews.ApprovedRatings(ctx, query.ProductID)
	if err != nil {
		return ProductReviews{}, mapRepoError("reviews.ratings", err)
	}
	return ProductReviews{Reviews: reviews, Summary: domain.SummarizeRatings(ratings)}, nil
}

func (s *reviewService) RequestImageUpload(ctx context.Context, cmd ImageUploadCommand) (ImageUpload, error) {
	if s.images == nil {
		return ImageUpload{}, fmt.Errorf("%w: review image uploads are not configured", ErrUnavailable)
	}
	signed, err := s.images.SignReviewImage(ctx, cmd.ShopperID, ulid.Make().String(), cmd.FileName, cmd.ContentType)
	switch {
	case errors.Is(err, storage.ErrContentTypeNotAllowed), errors.Is(err, storage.ErrInvalidFileName):
		return ImageUpload{}, fmt.Errorf("%w: %v", ErrValidation, err)
	case errors.Is(err, storage.ErrNotConfigured):
		return ImageUpload{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	case err != nil:
		return ImageUpload{}, fmt.Errorf("reviews.upload: %w", err)
	}
	return ImageUpload{
		UploadURL: signed.URL,
		Method:    signed.Method,
		Headers:   signed.Headers,
		ImageURL:  signed.PublicURL,
		ExpiresAt: signed.ExpiresAt,
	}, nil
}

// changed recomputes the product rating and announces the review mutation. Both run after the
// review write is durable; failures are logged only.
func (s *reviewService) changed(ctx context.Context, review domain.Review, action string) {
	fields := map[string]any{"reviewId": review.ID, "productId": review.ProductID}
	s.after.step(ctx, "rating.recompute", fields, func(ctx context.Context) error {
		_, err := s.ratings.Recompute(ctx, review.ProductID)
		return err
	})
	s.log(ctx, "review."+action, fields)
	s.after.publish(ctx, events.Event{
		Type: events.TypeReviewChanged, Key: review.ProductID, ShopperID: review.ShopperID, ShopID: review.ShopID,
		Data: map[string]any{"reviewId": review.ID, "action": action, "rating": review.Rating, "approved": review.IsApproved},
	})
}

func validateRating(rating int) error {
	if rating < 1 || rating > 5 {
		return validationError("rating must be between 1 and 5")
	}
	return nil
}

func normaliseReviewImages(images []string) ([]string, error) {
	if len(images) > maxReviewImages {
		return nil, validationError("at most %d images are allowed", maxReviewImages)
	}
	out := make([]string, 0, len(images))
	for i, image := range images {
		image = strings.TrimSpace(image)
		if !strings.HasPrefix(image, "https://") {
			return nil, validationError("images[%d] must be an https URL", i)
		}
		out = append(out, image)
	}
	return out, nil
}

func parseReviewSort(raw string) (repositories.ReviewSort, error) {
	switch repositories.ReviewSort(strings.ToLower(strings.TrimSpace(raw))) {
	case "", repositories.ReviewSortNewest:
		return repositories.ReviewSortNewest, nil
	case repositories.ReviewSortHelpful:
		return repositories.ReviewSortHelpful, nil
	case repositories.ReviewSortRating:
		return repositories.ReviewSortRating, nil
	}
	return "", validationError("sort must be one of newest, helpful or rating")
}
