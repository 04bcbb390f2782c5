package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/currency"

	domain "github.com/atelier-market/api/internal/domain"
	"github.com/atelier-market/api/internal/platform/textutil"
	"github.com/atelier-market/api/internal/repositories"
)

const defaultCurrency = "USD"

// ProductServiceDeps bundles collaborators required to construct a ProductService.
type ProductServiceDeps struct {
	Products repositories.ProductRepository
	Clock    func() time.Time
}

type productService struct {
	products repositories.ProductRepository
	now      func() time.Time
}

// NewProductService wires dependencies into a concrete ProductService implementation.
func NewProductService(deps ProductServiceDeps) (ProductService, error) {
	if deps.Products == nil {
		return nil, errors.New("product service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &productService{products: deps.Products, now: func() time.Time { return clock().UTC() }}, nil
}

func (s *productService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	name := textutil.PlainText(cmd.Name, 200)
	if name == "" {
		return Product{}, validationError("name is required")
	}
	if cmd.Price < 0 || cmd.StockQuantity < 0 {
		return Product{}, validationError("price and stockQuantity must not be negative")
	}
	code, err := normaliseCurrency(cmd.Currency)
	if err != nil {
		return Product{}, err
	}
	now := s.now()
	product := domain.Product{
		ID:            newID("prd_"),
		ShopID:        cmd.ShopID,
		Name:          name,
		Description:   textutil.PlainText(cmd.Description, 4000),
		Price:         cmd.Price,
		Currency:      code,
		Images:        slices.Clone(cmd.Images),
		StockQuantity: cmd.StockQuantity,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.products.Create(ctx, product); err != nil {
		return Product{}, mapRepoError("products.create", err)
	}
	return product, nil
}

func (s *productService) GetProduct(ctx context.Context, productID string) (Product, error) {
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return Product{}, mapRepoError("products.get", err)
	}
	return product, nil
}

func (s *productService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	product, err := s.products.Get(ctx, cmd.ProductID)
	if err != nil {
		return Product{}, mapRepoError("products.get", err)
	}
	if product.ShopID != cmd.ShopID {
		return Product{}, fmt.Errorf("%w: product belongs to another shop", ErrForbidden)
	}
	if cmd.Name != nil {
		if product.Name = textutil.PlainText(*cmd.Name, 200); product.Name == "" {
			return Product{}, validationError("name must not be empty")
		}
	}
	if cmd.Description != nil {
		product.Description = textutil.PlainText(*cmd.Description, 4000)
	}
	if cmd.Price != nil {
		if *cmd.Price < 0 {
			return Product{}, validationError("price must not be negative")
		}
		product.Price = *cmd.Price
	}
	if cmd.StockQuantity != nil {
		if *cmd.StockQuantity < 0 {
			return Product{}, validationError("stockQuantity must not be negative")
		}
		product.StockQuantity = *cmd.StockQuantity
	}
	if cmd.Images != nil {
		product.Images = slices.Clone(cmd.Images)
	}
	if cmd.Active != nil {
		product.Active = *cmd.Active
	}
	product.UpdatedAt = s.now()
	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, mapRepoError("products.update", err)
	}
	return product, nil
}

func normaliseCurrency(raw string) (string, error) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" {
		return defaultCurrency, nil
	}
	unit, err := currency.ParseISO(raw)
	if err != nil {
		return "", validationError("unknown currency %q", raw)
	}
	return unit.String(), nil
}
