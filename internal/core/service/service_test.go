package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

var testNow = time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

func sequentialIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

// steppingClock advances one second per call so orders get distinct
// timestamps.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	now := testNow
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

type fixture struct {
	store   *storage.MemoryStore
	carts   *CartService
	orders  *OrderService
	catalog *CatalogService
}

func newFixture(t *testing.T, opts ...OrderOption) *fixture {
	t.Helper()
	store := storage.NewMemoryStore(0)
	return newFixtureWith(t, store, store, opts...)
}

// newFixtureWith lets a test wrap the product repository the guard and totaler
// see, for example to simulate a stale read.
func newFixtureWith(t *testing.T, store *storage.MemoryStore, products port.ProductRepository, opts ...OrderOption) *fixture {
	t.Helper()
	clock := steppingClock()
	guard := NewInventoryGuard(products)

	orderOpts := append([]OrderOption{
		WithOrderIDs(sequentialIDs("order")),
		WithOrderClock(clock),
	}, opts...)

	return &fixture{
		store: store,
		carts: NewCartService(store, guard, NewTotaler(products, SkipOnMissing),
			WithCartIDs(sequentialIDs("cart")),
			WithCartClock(clock),
		),
		orders:  NewOrderService(store, store, guard, orderOpts...),
		catalog: NewCatalogService(store, store),
	}
}

func (f *fixture) seedProduct(t *testing.T, id, price string, stock int) {
	t.Helper()
	require.NoError(t, f.store.CreateProduct(context.Background(), domain.Product{
		ID:        id,
		Name:      "Product " + id,
		Price:     decimal.RequireFromString(price),
		Stock:     stock,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}))
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := f.store.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

// addToCart upserts one line and returns the cart ID.
func (f *fixture) addToCart(t *testing.T, cartID, productID string, quantity int) string {
	t.Helper()
	res, err := f.carts.UpsertItem(context.Background(), UpsertItemRequest{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
	})
	require.NoError(t, err)
	return res.Cart.ID
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "expected %s, got %s", want, got)
}
