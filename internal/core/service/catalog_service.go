package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type CreateProductRequest struct {
	Name        string           `json:"name" validate:"required"`
	Price       *decimal.Decimal `json:"price" validate:"required"`
	CategoryID  string           `json:"category" validate:"required"`
	Description string           `json:"description"`
	Stock       *int             `json:"stock" validate:"omitempty,gte=0"`
}

type UpdateProductRequest struct {
	ID          string           `json:"-" validate:"required"`
	Name        string           `json:"name" validate:"required"`
	Price       *decimal.Decimal `json:"price" validate:"required"`
	CategoryID  string           `json:"category" validate:"required"`
	Description *string          `json:"description"`
	Stock       *int             `json:"stock" validate:"omitempty,gte=0"`
}

type CategoryRequest struct {
	ID          string `json:"-"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// CatalogService manages products and categories. Deleting a category does
// not look at the products that reference it.
type CatalogService struct {
	products   port.ProductRepository
	categories port.CategoryRepository
	newID      func() string
	now        func() time.Time
}

type CatalogOption func(*CatalogService)

func WithCatalogIDs(newID func() string) CatalogOption {
	return func(s *CatalogService) { s.newID = newID }
}

func WithCatalogClock(now func() time.Time) CatalogOption {
	return func(s *CatalogService) { s.now = now }
}

func NewCatalogService(products port.ProductRepository, categories port.CategoryRepository, opts ...CatalogOption) *CatalogService {
	s := &CatalogService{
		products:   products,
		categories: categories,
		newID:      uuid.NewString,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CatalogService) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	return s.products.FindProducts(ctx, filter)
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.products.GetProduct(ctx, id)
}

// LookupProducts resolves ids to products, silently leaving out the ones
// that no longer exist.
func (s *CatalogService) LookupProducts(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	out := make(map[string]*domain.Product, len(ids))
	for _, id := range ids {
		if _, seen := out[id]; seen {
			continue
		}
		p, err := s.products.GetProduct(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = p
	}
	return out, nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, req CreateProductRequest) (*domain.Product, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.Price.IsNegative() {
		return nil, domain.NewValidationError("price", "must be a non-negative number")
	}
	if err := s.requireCategory(ctx, req.CategoryID); err != nil {
		return nil, err
	}

	now := s.now()
	product := domain.Product{
		ID:          s.newID(),
		Name:        req.Name,
		Description: req.Description,
		Price:       *req.Price,
		CategoryID:  req.CategoryID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Stock != nil {
		product.Stock = *req.Stock
	}

	if err := s.products.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return &product, nil
}

// UpdateProduct replaces the editable fields. A new stock level is applied as
// a delta through the atomic increment so concurrent sales are not lost.
func (s *CatalogService) UpdateProduct(ctx context.Context, req UpdateProductRequest) (*domain.Product, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.Price.IsNegative() {
		return nil, domain.NewValidationError("price", "must be a non-negative number")
	}
	if err := s.requireCategory(ctx, req.CategoryID); err != nil {
		return nil, err
	}

	product, err := s.products.GetProduct(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	product.Name = req.Name
	product.Price = *req.Price
	product.CategoryID = req.CategoryID
	if req.Description != nil {
		product.Description = *req.Description
	}
	product.UpdatedAt = s.now()

	if err := s.products.UpdateProduct(ctx, *product); err != nil {
		return nil, fmt.Errorf("update product %s: %w", req.ID, err)
	}

	if req.Stock != nil && *req.Stock != product.Stock {
		stock, err := s.products.IncrementStock(ctx, product.ID, *req.Stock-product.Stock)
		if err != nil {
			return nil, fmt.Errorf("set stock of %s: %w", product.ID, err)
		}
		product.Stock = stock
	}

	return product, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	return s.products.DeleteProduct(ctx, id)
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.categories.FindCategories(ctx)
}

func (s *CatalogService) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	return s.categories.GetCategory(ctx, id)
}

func (s *CatalogService) CreateCategory(ctx context.Context, req CategoryRequest) (*domain.Category, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	now := s.now()
	category := domain.Category{
		ID:          s.newID(),
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.categories.CreateCategory(ctx, category); err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return &category, nil
}

func (s *CatalogService) UpdateCategory(ctx context.Context, req CategoryRequest) (*domain.Category, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	category, err := s.categories.GetCategory(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	category.Name = req.Name
	category.Description = req.Description
	category.UpdatedAt = s.now()

	if err := s.categories.UpdateCategory(ctx, *category); err != nil {
		return nil, fmt.Errorf("update category %s: %w", req.ID, err)
	}
	return category, nil
}

func (s *CatalogService) DeleteCategory(ctx context.Context, id string) error {
	return s.categories.DeleteCategory(ctx, id)
}

func (s *CatalogService) requireCategory(ctx context.Context, id string) error {
	_, err := s.categories.GetCategory(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewValidationError("category", "does not exist")
	}
	return err
}
