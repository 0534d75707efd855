package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	CategoryID  string // empty when uncategorised
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductFilter narrows FindProducts. Zero values match everything.
type ProductFilter struct {
	CategoryID   string
	NameContains string // case-insensitive
}

func (p *Product) HasStock(quantity int) bool {
	return p.Stock >= quantity
}
