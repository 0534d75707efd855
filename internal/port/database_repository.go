package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

// Lookups and mutations by ID return an error wrapping domain.ErrNotFound when
// the record does not exist.

type ProductRepository interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	FindProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) error
	UpdateProduct(ctx context.Context, product domain.Product) error
	DeleteProduct(ctx context.Context, id string) error

	// IncrementStock atomically adds delta to the product's stock and returns
	// the new value. It fails with domain.ErrInsufficientStock, leaving stock
	// untouched, if the result would be negative.
	IncrementStock(ctx context.Context, id string, delta int) (int, error)
}

type CategoryRepository interface {
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	FindCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) error
	UpdateCategory(ctx context.Context, category domain.Category) error
	DeleteCategory(ctx context.Context, id string) error
}

type CartRepository interface {
	GetCart(ctx context.Context, id string) (*domain.Cart, error)
	// CreateCart fails with domain.ErrConflict if the ID is already taken.
	CreateCart(ctx context.Context, cart *domain.Cart) error

	// UpdateCart persists cart if its Version still matches the stored one and
	// bumps Version on success. A stale write fails with domain.ErrConflict.
	UpdateCart(ctx context.Context, cart *domain.Cart) error

	DeleteCart(ctx context.Context, id string) error
}

type OrderRepository interface {
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	// FindOrders returns orders newest first.
	FindOrders(ctx context.Context) ([]domain.Order, error)
	CreateOrder(ctx context.Context, order *domain.Order) error
}

// RecordStore is the full persistence collaborator opened at startup and
// closed at shutdown.
type RecordStore interface {
	ProductRepository
	CategoryRepository
	CartRepository
	OrderRepository

	Ping(ctx context.Context) error
	Close() error
}

// InventoryTx is the slice of the store visible inside a transaction.
type InventoryTx interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	IncrementStock(ctx context.Context, id string, delta int) (int, error)
}

// Transactor is implemented by stores that can commit an order together with
// its stock adjustments. If fn returns an error everything it did is rolled
// back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx InventoryTx) error) error
}
