package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// InventoryGuard owns the "sufficient stock" check and every stock mutation.
type InventoryGuard struct {
	products port.ProductRepository
}

func NewInventoryGuard(products port.ProductRepository) *InventoryGuard {
	return &InventoryGuard{products: products}
}

// CheckAvailable returns the product if it can cover quantity.
func (g *InventoryGuard) CheckAvailable(ctx context.Context, productID string, quantity int) (*domain.Product, error) {
	product, err := g.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	if !product.HasStock(quantity) {
		return nil, &domain.StockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Requested:   quantity,
			Available:   product.Stock,
		}
	}

	return product, nil
}

// Decrement removes quantity from a single product's stock through the
// store's atomic increment. Callers decrement line by line.
func (g *InventoryGuard) Decrement(ctx context.Context, productID string, quantity int) error {
	return decrementStock(ctx, g.products, productID, quantity)
}

// DecrementTx is Decrement scoped to an open store transaction.
func (g *InventoryGuard) DecrementTx(ctx context.Context, tx port.InventoryTx, productID string, quantity int) error {
	return decrementStock(ctx, tx, productID, quantity)
}

type stockIncrementer interface {
	IncrementStock(ctx context.Context, id string, delta int) (int, error)
}

func decrementStock(ctx context.Context, store stockIncrementer, productID string, quantity int) error {
	if quantity <= 0 {
		return domain.NewValidationError("quantity", "must be greater than 0")
	}

	if _, err := store.IncrementStock(ctx, productID, -quantity); err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			var stockErr *domain.StockError
			if errors.As(err, &stockErr) {
				return err
			}
			return &domain.StockError{ProductID: productID, Requested: quantity}
		}
		return fmt.Errorf("decrement stock of %s: %w", productID, err)
	}

	return nil
}
