package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/atelier-market/api/internal/domain"
	pfirestore "github.com/atelier-market/api/internal/platform/firestore"
	"github.com/atelier-market/api/internal/repositories"
)

// ShopperRepository stores shoppers with a per-kind email index.
type ShopperRepository struct {
	provider *pfirestore.Provider
	docs     *pfirestore.Collection[shopperDocument]
	emails   *pfirestore.Collection[emailIndexDocument]
}

func (r *ShopperRepository) Create(ctx context.Context, shopper domain.Shopper) error {
	return createWithEmail(ctx, r.provider, r.emails, string(domain.PrincipalShopper), shopper.Email, shopper.ID, func(tx *firestore.Transaction) error {
		ref, err := r.docs.Ref(ctx, shopper.ID)
		if err != nil {
			return err
		}
		return tx.Create(ref, newShopperDocument(shopper))
	})
}

func (r *ShopperRepository) Get(ctx context.Context, shopperID string) (domain.Shopper, error) {
	doc, err := r.docs.Get(ctx, shopperID)
	if err != nil {
		return domain.Shopper{}, err
	}
	return doc.toDomain(shopperID), nil
}

func (r *ShopperRepository) FindByEmail(ctx context.Context, email string) (domain.Shopper, error) {
	index, err := r.emails.Get(ctx, emailIndexID(string(domain.PrincipalShopper), email))
	if err != nil {
		return domain.Shopper{}, err
	}
	return r.Get(ctx, index.PrincipalID)
}

// ShopRepository stores shops with a per-kind email index.
type ShopRepository struct {
	provider *pfirestore.Provider
	docs     *pfirestore.Collection[shopDocument]
	emails   *pfirestore.Collection[emailIndexDocument]
}

func (r *ShopRepository) Create(ctx context.Context, shop domain.Shop) error {
	return createWithEmail(ctx, r.provider, r.emails, string(domain.PrincipalShop), shop.Email, shop.ID, func(tx *firestore.Transaction) error {
		ref, err := r.docs.Ref(ctx, shop.ID)
		if err != nil {
			return err
		}
		return tx.Create(ref, newShopDocument(shop))
	})
}

func (r *ShopRepository) Get(ctx context.Context, shopID string) (domain.Shop, error) {
	doc, err := r.docs.Get(ctx, shopID)
	if err != nil {
		return domain.Shop{}, err
	}
	return doc.toDomain(shopID), nil
}

func (r *ShopRepository) FindByEmail(ctx context.Context, email string) (domain.Shop, error) {
	index, err := r.emails.Get(ctx, emailIndexID(string(domain.PrincipalShop), email))
	if err != nil {
		return domain.Shop{}, err
	}
	return r.Get(ctx, index.PrincipalID)
}

func (r *ShopRepository) IncrementStats(ctx context.Context, shopID string, orders int64, sales int64) error {
	return r.docs.Update(ctx, shopID, []firestore.Update{
		{Path: "totalOrders", Value: firestore.Increment(orders)},
		{Path: "totalSales", Value: firestore.Increment(sales)},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
}

func createWithEmail(ctx context.Context, provider *pfirestore.Provider, emails *pfirestore.Collection[emailIndexDocument], kind, email, principalID string, write func(*firestore.Transaction) error) error {
	indexRef, err := emails.Ref(ctx, emailIndexID(kind, email))
	if err != nil {
		return err
	}
	err = provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(indexRef, emailIndexDocument{PrincipalID: principalID, CreatedAt: time.Now().UTC()}); err != nil {
			return err
		}
		return write(tx)
	})
	if repositories.IsConflict(err) {
		return repositories.Conflict(kind+"s.create", "email %s already registered", email)
	}
	return err
}

// ProductRepository stores products and their denormalised stats.
type ProductRepository struct {
	docs *pfirestore.Collection[productDocument]
}

func (r *ProductRepository) Create(ctx context.Context, product domain.Product) error {
	return r.docs.Create(ctx, product.ID, newProductDocument(product))
}

func (r *ProductRepository) Get(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.docs.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.toDomain(productID), nil
}

// Update writes catalog fields only; stock and derived stats are owned by other paths.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	return r.docs.Update(ctx, product.ID, []firestore.Update{
		{Path: "name", Value: product.Name},
		{Path: "description", Value: product.Description},
		{Path: "price", Value: product.Price},
		{Path: "currency", Value: product.Currency},
		{Path: "images", Value: product.Images},
		{Path: "stockQuantity", Value: product.StockQuantity},
		{Path: "active", Value: product.Active},
		{Path: "updatedAt", Value: product.UpdatedAt.UTC()},
	})
}

func (r *ProductRepository) SetRatingStats(ctx context.Context, productID string, rating float64, reviewsCount int) error {
	return r.docs.Update(ctx, productID, []firestore.Update{
		{Path: "rating", Value: rating},
		{Path: "reviewsCount", Value: reviewsCount},
	})
}

func (r *ProductRepository) IncrementSales(ctx context.Context, productID string, quantity int) error {
	return r.docs.Update(ctx, productID, []firestore.Update{
		{Path: "salesCount", Value: firestore.Increment(quantity)},
	})
}

// CartRepository stores one cart document per shopper, keyed by shopper ID.
type CartRepository struct {
	docs *pfirestore.Collection[cartDocument]
}

func (r *CartRepository) Create(ctx context.Context, cart domain.Cart) error {
	return r.docs.Create(ctx, cart.ShopperID, newCartDocument(cart))
}

func (r *CartRepository) Get(ctx context.Context, shopperID string) (domain.Cart, error) {
	doc, err := r.docs.Get(ctx, shopperID)
	if err != nil {
		return domain.Cart{}, err
	}
	return doc.toDomain(shopperID), nil
}

func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) error {
	return r.docs.Set(ctx, cart.ShopperID, newCartDocument(cart))
}

func (r *CartRepository) Delete(ctx context.Context, shopperID string) error {
	return r.docs.Delete(ctx, shopperID)
}
