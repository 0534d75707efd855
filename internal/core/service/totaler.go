package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// MissingProductPolicy decides what a cart line contributes when its product
// has been deleted since it was added.
type MissingProductPolicy string

const (
	// SkipOnMissing prices such lines at zero.
	SkipOnMissing MissingProductPolicy = "skip"
	// FailOnMissing rejects the recomputation with a NotFound error.
	FailOnMissing MissingProductPolicy = "fail"
)

func ParseMissingProductPolicy(s string) (MissingProductPolicy, error) {
	switch MissingProductPolicy(s) {
	case "", SkipOnMissing:
		return SkipOnMissing, nil
	case FailOnMissing:
		return FailOnMissing, nil
	}
	return "", fmt.Errorf("unknown missing product policy %q", s)
}

// Totaler recomputes cart totals from live product prices.
type Totaler struct {
	products port.ProductRepository
	policy   MissingProductPolicy
}

func NewTotaler(products port.ProductRepository, policy MissingProductPolicy) *Totaler {
	if policy == "" {
		policy = SkipOnMissing
	}
	return &Totaler{products: products, policy: policy}
}

func (t *Totaler) Total(ctx context.Context, items []domain.CartItem) (decimal.Decimal, error) {
	total := decimal.Zero

	for _, item := range items {
		product, err := t.products.GetProduct(ctx, item.ProductID)
		if errors.Is(err, domain.ErrNotFound) && t.policy == SkipOnMissing {
			continue
		}
		if err != nil {
			return decimal.Zero, err
		}

		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	return total, nil
}

// Recompute refreshes cart.TotalPrice in place.
func (t *Totaler) Recompute(ctx context.Context, cart *domain.Cart) error {
	total, err := t.Total(ctx, cart.Items)
	if err != nil {
		return fmt.Errorf("recompute total: %w", err)
	}
	cart.TotalPrice = total
	return nil
}
