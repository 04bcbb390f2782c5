package firestore

import (
	"context"

	"cloud.google.com/go/firestore"

	domain "github.com/atelier-market/api/internal/domain"
	pfirestore "github.com/atelier-market/api/internal/platform/firestore"
	"github.com/atelier-market/api/internal/repositories"
)

// ReviewRepository stores reviews alongside a reviewKeys document that reserves the
// (shopper, product, order) triple.
type ReviewRepository struct {
	provider *pfirestore.Provider
	docs     *pfirestore.Collection[reviewDocument]
	keys     *pfirestore.Collection[reviewKeyDocument]
}

func (r *ReviewRepository) Create(ctx context.Context, review domain.Review) error {
	reviewRef, err := r.docs.Ref(ctx, review.ID)
	if err != nil {
		return err
	}
	keyRef, err := r.keys.Ref(ctx, reviewKeyID(review.ShopperID, review.ProductID, review.OrderID))
	if err != nil {
		return err
	}
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(keyRef, reviewKeyDocument{ReviewID: review.ID}); err != nil {
			return err
		}
		return tx.Create(reviewRef, newReviewDocument(review))
	})
	if repositories.IsConflict(err) {
		return repositories.Conflict("reviews.create", "review already exists for order %s and product %s", review.OrderID, review.ProductID)
	}
	return err
}

func (r *ReviewRepository) Get(ctx context.Context, reviewID string) (domain.Review, error) {
	doc, err := r.docs.Get(ctx, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	return doc.toDomain(reviewID), nil
}

// Update rewrites the editable fields; the triple and helpful counter are left untouched.
func (r *ReviewRepository) Update(ctx context.Context, review domain.Review) error {
	return r.docs.Update(ctx, review.ID, []firestore.Update{
		{Path: "rating", Value: review.Rating},
		{Path: "title", Value: review.Title},
		{Path: "comment", Value: review.Comment},
		{Path: "images", Value: review.Images},
		{Path: "isApproved", Value: review.IsApproved},
		{Path: "updatedAt", Value: review.UpdatedAt.UTC()},
	})
}

func (r *ReviewRepository) Delete(ctx context.Context, reviewID string) error {
	reviewRef, err := r.docs.Ref(ctx, reviewID)
	if err != nil {
		return err
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(reviewRef)
		if err != nil {
			if isMissing(err) {
				return repositories.NotFound("reviews.delete", "review %s not found", reviewID)
			}
			return err
		}
		doc, err := pfirestore.Decode[reviewDocument](snap)
		if err != nil {
			return err
		}
		keyRef, err := r.keys.Ref(ctx, reviewKeyID(doc.ShopperID, doc.ProductID, doc.OrderID))
		if err != nil {
			return err
		}
		if err := tx.Delete(keyRef); err != nil {
			return err
		}
		return tx.Delete(reviewRef)
	})
}

func (r *ReviewRepository) IncrementHelpful(ctx context.Context, reviewID string) (domain.Review, error) {
	if err := r.docs.Update(ctx, reviewID, []firestore.Update{{Path: "helpfulCount", Value: firestore.Increment(1)}}); err != nil {
		return domain.Review{}, err
	}
	return r.Get(ctx, reviewID)
}

func (r *ReviewRepository) ListApproved(ctx context.Context, filter repositories.ReviewListFilter) (domain.OffsetPage[domain.Review], error) {
	page := max(filter.Page, 1)
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	approved := func(q firestore.Query) firestore.Query {
		return q.Where("productId", "==", filter.ProductID).Where("isApproved", "==", true)
	}
	total, err := r.docs.Count(ctx, approved)
	if err != nil {
		return domain.OffsetPage[domain.Review]{}, err
	}
	if page-1 > total/limit {
		return domain.OffsetPage[domain.Review]{Items: []domain.Review{}, Page: page, Limit: limit, Total: total}, nil
	}
	snaps, err := r.docs.Snapshots(ctx, func(q firestore.Query) firestore.Query {
		q = approved(q)
		switch filter.Sort {
		case repositories.ReviewSortHelpful:
			q = q.OrderBy("helpfulCount", firestore.Desc)
		case repositories.ReviewSortRating:
			q = q.OrderBy("rating", firestore.Desc)
		}
		return q.OrderBy("createdAt", firestore.Desc).Offset((page - 1) * limit).Limit(limit)
	})
	if err != nil {
		return domain.OffsetPage[domain.Review]{}, err
	}
	items := make([]domain.Review, 0, len(snaps))
	for _, snap := range snaps {
		doc, err := pfirestore.Decode[reviewDocument](snap)
		if err != nil {
			return domain.OffsetPage[domain.Review]{}, err
		}
		items = append(items, doc.toDomain(snap.Ref.ID))
	}
	return domain.OffsetPage[domain.Review]{Items: items, Page: page, Limit: limit, Total: total}, nil
}

func (r *ReviewRepository) ApprovedRatings(ctx context.Context, productID string) ([]int, error) {
	snaps, err := r.docs.Snapshots(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("productId", "==", productID).Where("isApproved", "==", true).Select("rating")
	})
	if err != nil {
		return nil, err
	}
	ratings := make([]int, 0, len(snaps))
	for _, snap := range snaps {
		raw, err := snap.DataAt("rating")
		if err != nil {
			continue
		}
		if v, ok := raw.(int64); ok {
			ratings = append(ratings, int(v))
		}
	}
	return ratings, nil
}
