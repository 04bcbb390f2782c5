package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/platform/textutil"
	"github.com/atelier-market/api/internal/repositories"
)

const maxCartLineQuantity = 99

// CartServiceDeps bundles collaborators required to construct a CartService.
type CartServiceDeps struct {
	Carts    repositories.CartRepository
	Products repositories.ProductRepository
	Clock    func() time.Time
	IDGen    func() string
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	now      func() time.Time
	newID    func() string
}

// NewCartService wires dependencies into a concrete CartService implementation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil || deps.Products == nil {
		return nil, errors.New("cart service: cart and product repositories are required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return newID("ci_") }
	}
	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		now:      func() time.Time { return clock().UTC() },
		newID:    idGen,
	}, nil
}

// GetOrCreateCart returns the shopper's cart, creating it on first access. A concurrent
// creator losing the race reads the winner's cart.
func (s *cartService) GetOrCreateCart(ctx context.Context, shopperID string) (Cart, error) {
	cart, err := s.carts.Get(ctx, shopperID)
	if err == nil {
		return cart, nil
	}
	if !repositories.IsNotFound(err) {
		return Cart{}, mapRepoError("cart.get", err)
	}
	now := s.now()
	cart = domain.Cart{ID: shopperID, ShopperID: shopperID, Items: []domain.CartItem{}, CreatedAt: now, UpdatedAt: now}
	if err := s.carts.Create(ctx, cart); err != nil {
		if repositories.IsConflict(err) {
			existing, getErr := s.carts.Get(ctx, shopperID)
			return existing, mapRepoError("cart.get", getErr)
		}
		return Cart{}, mapRepoError("cart.create", err)
	}
	return cart, nil
}

func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	if cmd.Quantity < 1 || cmd.Quantity > maxCartLineQuantity {
		return Cart{}, validationError("quantity must be between 1 and %d", maxCartLineQuantity)
	}
	product, err := s.products.Get(ctx, cmd.ProductID)
	if err != nil {
		return Cart{}, mapRepoError("cart.product", err)
	}
	if !product.Active {
		return Cart{}, validationError("product %s is not available", product.ID)
	}

	cart, err := s.GetOrCreateCart(ctx, cmd.ShopperID)
	if err != nil {
		return Cart{}, err
	}
	now := s.now()
	idx := slices.IndexFunc(cart.Items, func(item domain.CartItem) bool { return item.ProductID == cmd.ProductID })

	quantity := cmd.Quantity
	if idx >= 0 {
		quantity += cart.Items[idx].Quantity
	}
	if err := checkStock(product, quantity); err != nil {
		return Cart{}, err
	}

	options := textutil.NormalizeStringMap(cmd.Options)
	if idx >= 0 {
		item := &cart.Items[idx]
		item.Quantity = quantity
		item.UnitPrice = product.Price
		item.Name = product.Name
		item.Options = options
		item.UpdatedAt = now
	} else {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:        s.newID(),
			ProductID: product.ID,
			ShopID:    product.ShopID,
			Name:      product.Name,
			Quantity:  quantity,
			Options:   options,
			UnitPrice: product.Price,
			AddedAt:   now,
			UpdatedAt: now,
		})
	}
	cart.UpdatedAt = now
	if err := s.carts.Save(ctx, cart); err != nil {
		return Cart{}, mapRepoError("cart.save", err)
	}
	return cart, nil
}

func (s *cartService) UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error) {
	if cmd.Quantity != nil && (*cmd.Quantity < 1 || *cmd.Quantity > maxCartLineQuantity) {
		return Cart{}, validationError("quantity must be between 1 and %d", maxCartLineQuantity)
	}
	cart, err := s.GetOrCreateCart(ctx, cmd.ShopperID)
	if err != nil {
		return Cart{}, err
	}
	idx := slices.IndexFunc(cart.Items, func(item domain.CartItem) bool { return item.ID == cmd.ItemID })
	if idx < 0 {
		return Cart{}, fmt.Errorf("%w: cart item %s", ErrNotFound, cmd.ItemID)
	}
	item := &cart.Items[idx]
	if cmd.Quantity != nil {
		product, err := s.products.Get(ctx, item.ProductID)
		if err != nil {
			return Cart{}, mapRepoError("cart.product", err)
		}
		if err := checkStock(product, *cmd.Quantity); err != nil {
			return Cart{}, err
		}
		item.Quantity = *cmd.Quantity
	}
	if cmd.Options != nil {
		item.Options = textutil.NormalizeStringMap(cmd.Options)
	}
	now := s.now()
	item.UpdatedAt = now
	cart.UpdatedAt = now
	if err := s.carts.Save(ctx, cart); err != nil {
		return Cart{}, mapRepoError("cart.save", err)
	}
	return cart, nil
}

// RemoveItem deletes a line; removing an absent line succeeds without writing.
func (s *cartService) RemoveItem(ctx context.Context, shopperID, itemID string) (Cart, error) {
	cart, err := s.GetOrCreateCart(ctx, shopperID)
	if err != nil {
		return Cart{}, err
	}
	remaining := slices.DeleteFunc(slices.Clone(cart.Items), func(item domain.CartItem) bool { return item.ID == itemID })
	if len(remaining) == len(cart.Items) {
		return cart, nil
	}
	cart.Items = remaining
	cart.UpdatedAt = s.now()
	if err := s.carts.Save(ctx, cart); err != nil {
		return Cart{}, mapRepoError("cart.save", err)
	}
	return cart, nil
}

// Clear deletes the cart document; the next access recreates an empty cart.
func (s *cartService) Clear(ctx context.Context, shopperID string) error {
	if err := s.carts.Delete(ctx, shopperID); err != nil && !repositories.IsNotFound(err) {
		return mapRepoError("cart.clear", err)
	}
	return nil
}

func checkStock(product domain.Product, quantity int) error {
	if product.StockQuantity < quantity {
		return fmt.Errorf("%w: %w", ErrInsufficientStock, repositories.NewInsufficientStockError(product.ID, quantity, product.StockQuantity))
	}
	return nil
}
