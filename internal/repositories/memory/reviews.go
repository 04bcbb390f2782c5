package memory

import (
	"context"
	"slices"
	"strings"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/repositories"
)

type reviewRepo struct{ s *Store }

func reviewKey(review domain.Review) string {
	return review.ShopperID + "|" + review.ProductID + "|" + review.OrderID
}

func (r reviewRepo) Create(_ context.Context, review domain.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := reviewKey(review)
	if _, exists := r.s.reviewKeys[key]; exists {
		return repositories.Conflict("reviews.create", "review already exists for order %s and product %s", review.OrderID, review.ProductID)
	}
	if _, exists := r.s.reviews[review.ID]; exists {
		return repositories.Conflict("reviews.create", "review %s already exists", review.ID)
	}
	r.s.reviews[review.ID] = cloneReview(review)
	r.s.reviewKeys[key] = review.ID
	return nil
}

func (r reviewRepo) Get(_ context.Context, reviewID string) (domain.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	review, ok := r.s.reviews[reviewID]
	if !ok {
		return domain.Review{}, repositories.NotFound("reviews.get", "review %s not found", reviewID)
	}
	return cloneReview(review), nil
}

func (r reviewRepo) Update(_ context.Context, review domain.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.reviews[review.ID]; !ok {
		return repositories.NotFound("reviews.update", "review %s not found", review.ID)
	}
	r.s.reviews[review.ID] = cloneReview(review)
	return nil
}

func (r reviewRepo) Delete(_ context.Context, reviewID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	review, ok := r.s.reviews[reviewID]
	if !ok {
		return repositories.NotFound("reviews.delete", "review %s not found", reviewID)
	}
	delete(r.s.reviews, reviewID)
	delete(r.s.reviewKeys, reviewKey(review))
	return nil
}

func (r reviewRepo) IncrementHelpful(_ context.Context, reviewID string) (domain.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	review, ok := r.s.reviews[reviewID]
	if !ok {
		return domain.Review{}, repositories.NotFound("reviews.helpful", "review %s not found", reviewID)
	}
	review.HelpfulCount++
	r.s.reviews[reviewID] = review
	return cloneReview(review), nil
}

func (r reviewRepo) ListApproved(_ context.Context, filter repositories.ReviewListFilter) (domain.OffsetPage[domain.Review], error) {
	r.s.mu.Lock()
	matches := make([]domain.Review, 0)
	for _, review := range r.s.reviews {
		if review.ProductID == filter.ProductID && review.IsApproved {
			matches = append(matches, cloneReview(review))
		}
	}
	r.s.mu.Unlock()

	slices.SortFunc(matches, func(a, b domain.Review) int {
		switch filter.Sort {
		case repositories.ReviewSortHelpful:
			if a.HelpfulCount != b.HelpfulCount {
				return b.HelpfulCount - a.HelpfulCount
			}
		case repositories.ReviewSortRating:
			if a.Rating != b.Rating {
				return b.Rating - a.Rating
			}
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	page := max(filter.Page, 1)
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	start := len(matches)
	if skip := page - 1; skip <= len(matches)/limit {
		start = min(skip*limit, len(matches))
	}
	end := min(start+limit, len(matches))
	return domain.OffsetPage[domain.Review]{
		Items: matches[start:end],
		Page:  page,
		Limit: limit,
		Total: len(matches),
	}, nil
}

func (r reviewRepo) ApprovedRatings(_ context.Context, productID string) ([]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ratings := make([]int, 0)
	for _, review := range r.s.reviews {
		if review.ProductID == productID && review.IsApproved {
			ratings = append(ratings, review.Rating)
		}
	}
	return ratings, nil
}
