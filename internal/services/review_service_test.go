package services

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/platform/events"
	"github.com/atelier-market/api/internal/platform/storage"
)

func (m *marketplace) review(t *testing.T, orderID string, rating int) domain.Review {
	t.Helper()
	review, err := m.reviews.CreateReview(context.Background(), CreateReviewCommand{
		ShopperID: m.shopper.ID, OrderID: orderID, ProductID: m.product.ID, Rating: rating, Title: "Fits well",
	})
	require.NoError(t, err)
	return review
}

func (m *marketplace) productStats(t *testing.T) domain.ProductStats {
	t.Helper()
	product, err := m.reg.Products().Get(context.Background(), m.product.ID)
	require.NoError(t, err)
	return product.Stats
}

func TestCreateReviewPreconditions(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	order := m.placeOrder(t, 1)

	cmd := CreateReviewCommand{ShopperID: m.shopper.ID, OrderID: order.ID, ProductID: m.product.ID, Rating: 5}
	_, err := m.reviews.CreateReview(ctx, cmd)
	assert.ErrorIs(t, err, ErrInvalidState)

	m.deliver(t, order.ID)

	other := cmd
	other.ShopperID = "shp_2"
	_, err = m.reviews.CreateReview(ctx, other)
	assert.ErrorIs(t, err, ErrForbidden)

	other = cmd
	other.ProductID = "prd_other"
	_, err = m.reviews.CreateReview(ctx, other)
	assert.ErrorIs(t, err, ErrForbidden)

	other = cmd
	other.Rating = 6
	_, err = m.reviews.CreateReview(ctx, other)
	assert.ErrorIs(t, err, ErrValidation)

	other = cmd
	other.OrderID = "ord_missing"
	_, err = m.reviews.CreateReview(ctx, other)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDuplicateReviewKeepsFirst(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	order := m.placeOrder(t, 1)
	m.deliver(t, order.ID)

	first := m.review(t, order.ID, 4)
	assert.True(t, first.IsVerifiedPurchase)
	assert.True(t, first.IsApproved)

	_, err := m.reviews.CreateReview(ctx, CreateReviewCommand{
		ShopperID: m.shopper.ID, OrderID: order.ID, ProductID: m.product.ID, Rating: 1, Title: "changed my mind",
	})
	assert.ErrorIs(t, err, ErrConflict)

	stored, err := m.reg.Reviews().Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.Rating)
	assert.Equal(t, "Fits well", stored.Title)

	second := m.placeOrder(t, 1)
	m.deliver(t, second.ID)
	m.review(t, second.ID, 5)

	stats := m.productStats(t)
	assert.Equal(t, 4.5, stats.Rating)
	assert.Equal(t, 2, stats.ReviewsCount)
}

func TestRatingRecomputedOnEveryMutation(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()

	var reviews []domain.Review
	for _, rating := range []int{5, 4, 4} {
		order := m.placeOrder(t, 1)
		m.deliver(t, order.ID)
		reviews = append(reviews, m.review(t, order.ID, rating))
	}
	assert.Equal(t, 4.3, m.productStats(t).Rating)

	two := 2
	_, err := m.reviews.UpdateReview(ctx, UpdateReviewCommand{ShopperID: m.shopper.ID, ReviewID: reviews[0].ID, Rating: &two})
	require.NoError(t, err)
	assert.Equal(t, 3.3, m.productStats(t).Rating, "a rating edit refreshes the cache")

	admin := domain.Principal{Kind: domain.PrincipalShopper, ID: "shp_admin", Role: domain.RoleAdmin}
	_, err = m.reviews.ModerateReview(ctx, ModerateReviewCommand{Actor: admin, ReviewID: reviews[1].ID, Approved: false})
	require.NoError(t, err)
	stats := m.productStats(t)
	assert.Equal(t, 3.0, stats.Rating)
	assert.Equal(t, 2, stats.ReviewsCount)

	require.NoError(t, m.reviews.DeleteReview(ctx, m.shopper, reviews[0].ID))
	require.NoError(t, m.reviews.DeleteReview(ctx, admin, reviews[2].ID))
	stats = m.productStats(t)
	assert.Zero(t, stats.Rating)
	assert.Zero(t, stats.ReviewsCount, "no approved reviews left resets the cache")

	assert.Contains(t, m.publisher.Types(), events.TypeRatingRecomputed)
	assert.Contains(t, m.publisher.Types(), events.TypeReviewChanged)
}

func TestReviewAuthorization(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	order := m.placeOrder(t, 1)
	m.deliver(t, order.ID)
	review := m.review(t, order.ID, 3)

	stranger := domain.Principal{Kind: domain.PrincipalShopper, ID: "shp_2", Role: domain.RoleShopper}
	assert.ErrorIs(t, m.reviews.DeleteReview(ctx, stranger, review.ID), ErrForbidden)
	assert.ErrorIs(t, m.reviews.DeleteReview(ctx, m.shop, review.ID), ErrForbidden)

	title := "edited"
	_, err := m.reviews.UpdateReview(ctx, UpdateReviewCommand{ShopperID: stranger.ID, ReviewID: review.ID, Title: &title})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = m.reviews.ModerateReview(ctx, ModerateReviewCommand{Actor: m.shopper, ReviewID: review.ID})
	assert.ErrorIs(t, err, ErrForbidden)

	helpful, err := m.reviews.MarkHelpful(ctx, stranger.ID, review.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, helpful.HelpfulCount)
}

func TestModerationQueueHoldsNewReviews(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	moderated, err := NewReviewService(ReviewServiceDeps{
		Reviews: m.reg.Reviews(), Orders: m.reg.Orders(), Products: m.reg.Products(), Ratings: m.ratings,
		RequireModeration: true, Clock: m.clock.Now,
	})
	require.NoError(t, err)
	order := m.placeOrder(t, 1)
	m.deliver(t, order.ID)

	review, err := moderated.CreateReview(ctx, CreateReviewCommand{ShopperID: m.shopper.ID, OrderID: order.ID, ProductID: m.product.ID, Rating: 5})
	require.NoError(t, err)
	assert.False(t, review.IsApproved)
	assert.Zero(t, m.productStats(t).ReviewsCount)
}

func TestListProductReviews(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	for _, rating := range []int{2, 5, 5} {
		order := m.placeOrder(t, 1)
		m.deliver(t, order.ID)
		m.review(t, order.ID, rating)
		m.clock.Advance(time.Minute)
	}

	result, err := m.reviews.ListProductReviews(ctx, ProductReviewsQuery{ProductID: m.product.ID, Limit: 2, Sort: "rating"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Reviews.Total)
	assert.Equal(t, 2, result.Reviews.Pages())
	require.Len(t, result.Reviews.Items, 2)
	assert.Equal(t, 5, result.Reviews.Items[0].Rating)
	assert.Equal(t, 4.0, result.Summary.Average)
	assert.Equal(t, 2, result.Summary.Distribution[5])
	assert.Equal(t, 0, result.Summary.Distribution[3])

	_, err = m.reviews.ListProductReviews(ctx, ProductReviewsQuery{ProductID: m.product.ID, Sort: "loudest"})
	assert.ErrorIs(t, err, ErrValidation)

	result, err = m.reviews.ListProductReviews(ctx, ProductReviewsQuery{ProductID: m.product.ID, Page: maxReviewPage, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, result.Reviews.Items)
	assert.Equal(t, 3, result.Reviews.Total)

	_, err = m.reviews.ListProductReviews(ctx, ProductReviewsQuery{ProductID: m.product.ID, Page: math.MaxInt, Limit: 10})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = m.reviews.ListProductReviews(ctx, ProductReviewsQuery{ProductID: "prd_missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

type stubImageSigner struct {
	err error
}

func (s stubImageSigner) SignReviewImage(_ context.Context, shopperID, uploadID, fileName, contentType string) (storage.UploadURL, error) {
	if s.err != nil {
		return storage.UploadURL{}, s.err
	}
	object := "reviews/" + shopperID + "/" + uploadID + "/" + fileName
	return storage.UploadURL{
		URL:       "https://signed.example/" + object,
		Method:    "PUT",
		Object:    object,
		PublicURL: "https://storage.googleapis.com/media/" + object,
		Headers:   map[string]string{"Content-Type": contentType},
	}, nil
}

func TestRequestImageUpload(t *testing.T) {
	m := newMarketplace(t)
	ctx := context.Background()
	cmd := ImageUploadCommand{ShopperID: m.shopper.ID, FileName: "fit.jpg", ContentType: "image/jpeg"}

	_, err := m.reviews.RequestImageUpload(ctx, cmd)
	assert.ErrorIs(t, err, ErrUnavailable)

	svc, err := NewReviewService(ReviewServiceDeps{
		Reviews: m.reg.Reviews(), Orders: m.reg.Orders(), Products: m.reg.Products(), Ratings: m.ratings, Images: stubImageSigner{},
	})
	require.NoError(t, err)
	upload, err := svc.RequestImageUpload(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, "PUT", upload.Method)
	assert.Contains(t, upload.ImageURL, "reviews/shp_1/")
	assert.Equal(t, "image/jpeg", upload.Headers["Content-Type"])

	svc, err = NewReviewService(ReviewServiceDeps{
		Reviews: m.reg.Reviews(), Orders: m.reg.Orders(), Products: m.reg.Products(), Ratings: m.ratings,
		Images: stubImageSigner{err: storage.ErrContentTypeNotAllowed},
	})
	require.NoError(t, err)
	_, err = svc.RequestImageUpload(ctx, cmd)
	assert.ErrorIs(t, err, ErrValidation)
}
