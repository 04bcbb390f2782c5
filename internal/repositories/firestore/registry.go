// Package firestore implements the repository interfaces on Cloud Firestore.
package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	pfirestore "github.com/atelier-market/api/internal/platform/firestore"
	"github.com/atelier-market/api/internal/repositories"
)

const (
	shoppersCollection     = "shoppers"
	shopsCollection        = "shops"
	emailIndexCollection   = "emailIndex"
	productsCollection     = "products"
	cartsCollection        = "carts"
	ordersCollection       = "orders"
	orderNumbersCollection = "orderNumbers"
	returnsCollection      = "returns"
	reviewsCollection      = "reviews"
	reviewKeysCollection   = "reviewKeys"
)

// Registry wires every repository to one Firestore provider.
type Registry struct {
	provider *pfirestore.Provider
	shoppers *ShopperRepository
	shops    *ShopRepository
	products *ProductRepository
	carts    *CartRepository
	orders   *OrderRepository
	returns  *ReturnRepository
	reviews  *ReviewRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs the Firestore-backed registry.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires a provider")
	}
	emails := pfirestore.NewCollection[emailIndexDocument](provider, emailIndexCollection)
	products := pfirestore.NewCollection[productDocument](provider, productsCollection)
	return &Registry{
		provider: provider,
		shoppers: &ShopperRepository{provider: provider, docs: pfirestore.NewCollection[shopperDocument](provider, shoppersCollection), emails: emails},
		shops:    &ShopRepository{provider: provider, docs: pfirestore.NewCollection[shopDocument](provider, shopsCollection), emails: emails},
		products: &ProductRepository{docs: products},
		carts:    &CartRepository{docs: pfirestore.NewCollection[cartDocument](provider, cartsCollection)},
		orders: &OrderRepository{
			provider: provider,
			docs:     pfirestore.NewCollection[orderDocument](provider, ordersCollection),
			numbers:  pfirestore.NewCollection[orderNumberDocument](provider, orderNumbersCollection),
			products: products,
		},
		returns: &ReturnRepository{provider: provider, docs: pfirestore.NewCollection[returnDocument](provider, returnsCollection)},
		reviews: &ReviewRepository{
			provider: provider,
			docs:     pfirestore.NewCollection[reviewDocument](provider, reviewsCollection),
			keys:     pfirestore.NewCollection[reviewKeyDocument](provider, reviewKeysCollection),
		},
	}, nil
}

func (r *Registry) Shoppers() repositories.ShopperRepository { return r.shoppers }
func (r *Registry) Shops() repositories.ShopRepository       { return r.shops }
func (r *Registry) Products() repositories.ProductRepository { return r.products }
func (r *Registry) Carts() repositories.CartRepository       { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository     { return r.orders }
func (r *Registry) Returns() repositories.ReturnRepository   { return r.returns }
func (r *Registry) Reviews() repositories.ReviewRepository   { return r.reviews }

// Close releases the shared client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

func emailIndexID(kind, email string) string {
	return kind + ":" + strings.ToLower(strings.TrimSpace(email))
}

// reviewKeyID hashes the (shopper, product, order) triple into a document ID so that IDs
// containing slashes cannot escape the collection.
func reviewKeyID(shopperID, productID, orderID string) string {
	sum := sha256.Sum256([]byte(shopperID + "\x00" + productID + "\x00" + orderID))
	return hex.EncodeToString(sum[:])
}
