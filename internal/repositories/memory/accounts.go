package memory

import (
	"context"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/repositories"
)

type shopperRepo struct{ s *Store }

func (r shopperRepo) Create(_ context.Context, shopper domain.Shopper) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.shoppers[shopper.ID]; exists {
		return repositories.Conflict("shoppers.create", "shopper %s already exists", shopper.ID)
	}
	key := emailKey(shopper.Email)
	for _, existing := range r.s.shoppers {
		if emailKey(existing.Email) == key {
			return repositories.Conflict("shoppers.create", "email %s already registered", key)
		}
	}
	r.s.shoppers[shopper.ID] = shopper
	return nil
}

func (r shopperRepo) Get(_ context.Context, shopperID string) (domain.Shopper, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	shopper, ok := r.s.shoppers[shopperID]
	if !ok {
		return domain.Shopper{}, repositories.NotFound("shoppers.get", "shopper %s not found", shopperID)
	}
	return shopper, nil
}

func (r shopperRepo) FindByEmail(_ context.Context, email string) (domain.Shopper, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := emailKey(email)
	for _, shopper := range r.s.shoppers {
		if emailKey(shopper.Email) == key {
			return shopper, nil
		}
	}
	return domain.Shopper{}, repositories.NotFound("shoppers.findByEmail", "no shopper for %s", key)
}

type shopRepo struct{ s *Store }

func (r shopRepo) Create(_ context.Context, shop domain.Shop) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.shops[shop.ID]; exists {
		return repositories.Conflict("shops.create", "shop %s already exists", shop.ID)
	}
	key := emailKey(shop.Email)
	for _, existing := range r.s.shops {
		if emailKey(existing.Email) == key {
			return repositories.Conflict("shops.create", "email %s already registered", key)
		}
	}
	r.s.shops[shop.ID] = shop
	return nil
}

func (r shopRepo) Get(_ context.Context, shopID string) (domain.Shop, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	shop, ok := r.s.shops[shopID]
	if !ok {
		return domain.Shop{}, repositories.NotFound("shops.get", "shop %s not found", shopID)
	}
	return shop, nil
}

func (r shopRepo) FindByEmail(_ context.Context, email string) (domain.Shop, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := emailKey(email)
	for _, shop := range r.s.shops {
		if emailKey(shop.Email) == key {
			return shop, nil
		}
	}
	return domain.Shop{}, repositories.NotFound("shops.findByEmail", "no shop for %s", key)
}

func (r shopRepo) IncrementStats(_ context.Context, shopID string, orders int64, sales int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	shop, ok := r.s.shops[shopID]
	if !ok {
		return repositories.NotFound("shops.incrementStats", "shop %s not found", shopID)
	}
	shop.Stats.TotalOrders += orders
	shop.Stats.TotalSales += sales
	r.s.shops[shopID] = shop
	return nil
}

type productRepo struct{ s *Store }

func (r productRepo) Create(_ context.Context, product domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.products[product.ID]; exists {
		return repositories.Conflict("products.create", "product %s already exists", product.ID)
	}
	r.s.products[product.ID] = cloneProduct(product)
	return nil
}

func (r productRepo) Get(_ context.Context, productID string) (domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	product, ok := r.s.products[productID]
	if !ok {
		return domain.Product{}, repositories.NotFound("products.get", "product %s not found", productID)
	}
	return cloneProduct(product), nil
}

func (r productRepo) Update(_ context.Context, product domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.products[product.ID]
	if !ok {
		return repositories.NotFound("products.update", "product %s not found", product.ID)
	}
	// derived stats are owned by rating recomputation and order placement
	product.Stats = current.Stats
	r.s.products[product.ID] = cloneProduct(product)
	return nil
}

func (r productRepo) SetRatingStats(_ context.Context, productID string, rating float64, reviewsCount int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	product, ok := r.s.products[productID]
	if !ok {
		return repositories.NotFound("products.setRating", "product %s not found", productID)
	}
	product.Stats.Rating = rating
	product.Stats.ReviewsCount = reviewsCount
	r.s.products[productID] = product
	return nil
}

func (r productRepo) IncrementSales(_ context.Context, productID string, quantity int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	product, ok := r.s.products[productID]
	if !ok {
		return repositories.NotFound("products.incrementSales", "product %s not found", productID)
	}
	product.Stats.SalesCount += int64(quantity)
	r.s.products[productID] = product
	return nil
}

type cartRepo struct{ s *Store }

func (r cartRepo) Create(_ context.Context, cart domain.Cart) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.carts[cart.ShopperID]; exists {
		return repositories.Conflict("carts.create", "cart for %s already exists", cart.ShopperID)
	}
	r.s.carts[cart.ShopperID] = cloneCart(cart)
	return nil
}

func (r cartRepo) Get(_ context.Context, shopperID string) (domain.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cart, ok := r.s.carts[shopperID]
	if !ok {
		return domain.Cart{}, repositories.NotFound("carts.get", "cart for %s not found", shopperID)
	}
	return cloneCart(cart), nil
}

func (r cartRepo) Save(_ context.Context, cart domain.Cart) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.carts[cart.ShopperID] = cloneCart(cart)
	return nil
}

func (r cartRepo) Delete(_ context.Context, shopperID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.carts, shopperID)
	return nil
}
