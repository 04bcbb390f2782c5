package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/platform/events"
	"github.com/atelier-market/api/internal/repositories"
)

// RatingAggregatorDeps bundles collaborators required to construct a RatingAggregator.
type RatingAggregatorDeps struct {
	Reviews  repositories.ReviewRepository
	Products repositories.ProductRepository
	Events   events.Publisher
	Clock    func() time.Time
	Logger   Logger
}

type ratingAggregator struct {
	reviews  repositories.ReviewRepository
	products repositories.ProductRepository
	now      func() time.Time
	log      Logger
	after    afterCommit
}

// NewRatingAggregator wires dependencies into a concrete RatingAggregator implementation.
func NewRatingAggregator(deps RatingAggregatorDeps) (RatingAggregator, error) {
	if deps.Reviews == nil || deps.Products == nil {
		return nil, errors.New("rating aggregator: review and product repositories are required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	now := func() time.Time { return clock().UTC() }
	after := newAfterCommit(deps.Logger, deps.Events, nil, now)
	return &ratingAggregator{
		reviews:  deps.Reviews,
		products: deps.Products,
		now:      now,
		log:      after.log,
		after:    after,
	}, nil
}

// Recompute rewrites the cached rating from the approved reviews. It reads the full rating set
// every time, so running it twice or out of order converges on the same values.
func (a *ratingAggregator) Recompute(ctx context.Context, productID string) (RatingSummary, error) {
	if productID == "" {
		return RatingSummary{}, validationError("productId is required")
	}
	ratings, err := a.reviews.ApprovedRatings(ctx, productID)
	if err != nil {
		return RatingSummary{}, mapRepoError("ratings.load", err)
	}
	summary := domain.SummarizeRatings(ratings)
	if err := a.products.SetRatingStats(ctx, productID, summary.Average, summary.Count); err != nil {
		return RatingSummary{}, mapRepoError("ratings.store", err)
	}

	a.log(ctx, "rating.recomputed", map[string]any{"productId": productID, "rating": summary.Average, "count": summary.Count})
	a.after.publish(ctx, events.Event{
		Type: events.TypeRatingRecomputed, Key: productID, OccurredAt: a.now(),
		Data: map[string]any{"rating": summary.Average, "reviewsCount": summary.Count},
	})
	return summary, nil
}
