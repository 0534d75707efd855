package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CartItem struct {
	ProductID string
	Quantity  int
}

// Cart holds at most one line per product. TotalPrice is a cached value that
// is only as fresh as the last recomputation.
type Cart struct {
	ID         string
	Items      []CartItem
	TotalPrice decimal.Decimal
	Version    int // optimistic locking
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func NewCart(id string, now time.Time) *Cart {
	return &Cart{
		ID:         id,
		Items:      []CartItem{},
		TotalPrice: decimal.Zero,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IndexOf returns the position of the line for productID, or -1.
func (c *Cart) IndexOf(productID string) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// AddQuantity merges quantity into an existing line or appends a new one.
func (c *Cart) AddQuantity(productID string, quantity int) {
	if i := c.IndexOf(productID); i >= 0 {
		c.Items[i].Quantity += quantity
		return
	}
	c.Items = append(c.Items, CartItem{ProductID: productID, Quantity: quantity})
}

// SetQuantity overwrites the line quantity, removing the line when
// quantity <= 0. It reports false if the product is not in the cart.
func (c *Cart) SetQuantity(productID string, quantity int) bool {
	i := c.IndexOf(productID)
	if i < 0 {
		return false
	}
	if quantity <= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		return true
	}
	c.Items[i].Quantity = quantity
	return true
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Clone returns a deep copy so stores never share item slices with callers.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = make([]CartItem, len(c.Items))
	copy(cp.Items, c.Items)
	return &cp
}
