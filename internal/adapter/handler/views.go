package handler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
)

// ProductRef is a product reference expanded to its name and price. Only the
// ID is set once the product has been deleted.
type ProductRef struct {
	ID    string           `json:"id"`
	Name  string           `json:"name,omitempty"`
	Price *decimal.Decimal `json:"price,omitempty"`
}

type LineView struct {
	Product  ProductRef `json:"product"`
	Quantity int        `json:"quantity"`
}

type CartView struct {
	ID         string          `json:"id"`
	Items      []LineView      `json:"items"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

type OrderView struct {
	ID          string          `json:"id"`
	User        *string         `json:"user"`
	Items       []LineView      `json:"items"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type ProductView struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    *string         `json:"category"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type CategoryView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProductLookup resolves product IDs, leaving out the ones that are gone.
type ProductLookup interface {
	LookupProducts(ctx context.Context, ids []string) (map[string]*domain.Product, error)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func newProductView(p *domain.Product) ProductView {
	return ProductView{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		Category:    optional(p.CategoryID),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func newCategoryView(c *domain.Category) CategoryView {
	return CategoryView{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func productRef(id string, products map[string]*domain.Product) ProductRef {
	ref := ProductRef{ID: id}
	if p, ok := products[id]; ok {
		price := p.Price
		ref.Name = p.Name
		ref.Price = &price
	}
	return ref
}

func newCartView(c *domain.Cart, products map[string]*domain.Product) CartView {
	items := make([]LineView, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, LineView{Product: productRef(item.ProductID, products), Quantity: item.Quantity})
	}
	return CartView{
		ID:         c.ID,
		Items:      items,
		TotalPrice: c.TotalPrice,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func newOrderView(o *domain.Order, products map[string]*domain.Product) OrderView {
	items := make([]LineView, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, LineView{Product: productRef(item.ProductID, products), Quantity: item.Quantity})
	}
	return OrderView{
		ID:          o.ID,
		User:        optional(o.UserID),
		Items:       items,
		TotalAmount: o.TotalAmount,
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

func expandCart(ctx context.Context, lookup ProductLookup, c *domain.Cart) (CartView, error) {
	ids := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := lookup.LookupProducts(ctx, ids)
	if err != nil {
		return CartView{}, err
	}
	return newCartView(c, products), nil
}

// expandOrders resolves the products of all orders in one lookup.
func expandOrders(ctx context.Context, lookup ProductLookup, orders ...domain.Order) ([]OrderView, error) {
	var ids []string
	for _, o := range orders {
		for _, item := range o.Items {
			ids = append(ids, item.ProductID)
		}
	}
	products, err := lookup.LookupProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]OrderView, 0, len(orders))
	for i := range orders {
		out = append(out, newOrderView(&orders[i], products))
	}
	return out, nil
}
