package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type transactionalStore interface {
	port.RecordStore
	port.Transactor
}

// runStoreSuite checks the behaviour every RecordStore must share.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) transactionalStore) {
	t.Run("ProductLifecycle", func(t *testing.T) { testProductLifecycle(t, newStore(t)) })
	t.Run("FindProducts", func(t *testing.T) { testFindProducts(t, newStore(t)) })
	t.Run("IncrementStockGuard", func(t *testing.T) { testIncrementStockGuard(t, newStore(t)) })
	t.Run("ConcurrentDecrements", func(t *testing.T) { testConcurrentDecrements(t, newStore(t)) })
	t.Run("Categories", func(t *testing.T) { testCategories(t, newStore(t)) })
	t.Run("CartVersioning", func(t *testing.T) { testCartVersioning(t, newStore(t)) })
	t.Run("Orders", func(t *testing.T) { testOrders(t, newStore(t)) })
	t.Run("WithinTxRollback", func(t *testing.T) { testWithinTxRollback(t, newStore(t)) })
	t.Run("WithinTxCommit", func(t *testing.T) { testWithinTxCommit(t, newStore(t)) })
}

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seedProduct(t *testing.T, store port.ProductRepository, id, name string, price string, stock int) domain.Product {
	t.Helper()
	p := domain.Product{
		ID:        id,
		Name:      name,
		Price:     decimal.RequireFromString(price),
		Stock:     stock,
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
	require.NoError(t, store.CreateProduct(context.Background(), p))
	return p
}

func testProductLifecycle(t *testing.T, store transactionalStore) {
	ctx := context.Background()
	seedProduct(t, store, "p1", "Keyboard", "49.90", 5)

	got, err := store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Keyboard", got.Name)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("49.90")))
	assert.Equal(t, 5, got.Stock)

	// Stock is not writable through UpdateProduct
	got.Name = "Mechanical keyboard"
	got.Stock = 100
	got.UpdatedAt = baseTime.Add(time.Hour)
	require.NoError(t, store.UpdateProduct(ctx, *got))

	got, err = store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Mechanical keyboard", got.Name)
	assert.Equal(t, 5, got.Stock)

	require.NoError(t, store.DeleteProduct(ctx, "p1"))
	_, err = store.GetProduct(ctx, "p1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, store.DeleteProduct(ctx, "p1"), domain.ErrNotFound)
	assert.ErrorIs(t, store.UpdateProduct(ctx, domain.Product{ID: "p1", Price: decimal.Zero}), domain.ErrNotFound)
}

func testFindProducts(t *testing.T, store transactionalStore) {
	ctx := context.Background()
	require.NoError(t, store.CreateCategory(ctx, domain.Category{ID: "c1", Name: "Audio", CreatedAt: baseTime, UpdatedAt: baseTime}))

	for i, name := range []string{"USB Headset", "Desk lamp", "usb_hub 100%"} {
		p := domain.Product{
			ID:        string(rune('a' + i)),
			Name:      name,
			Price:     decimal.NewFromInt(10),
			CreatedAt: baseTime.Add(time.Duration(i) * time.Minute),
			UpdatedAt: baseTime,
		}
		if i == 0 {
			p.CategoryID = "c1"
		}
		require.NoError(t, store.CreateProduct(ctx, p))
	}

	all, err := store.FindProducts(ctx, domain.ProductFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "c", all[2].ID)

	usb, err := store.FindProducts(ctx, domain.ProductFilter{NameContains: "usb"})
	require.NoError(t, err)
	assert.Len(t, usb, 2)

	// Wildcards in the search term are literal
	literal, err := store.FindProducts(ctx, domain.ProductFilter{NameContains: "100%"})
	require.NoError(t, err)
	require.Len(t, literal, 1)
	assert.Equal(t, "c", literal[0].ID)

	underscore, err := store.FindProducts(ctx, domain.ProductFilter{NameContains: "b_h"})
	require.NoError(t, err)
	require.Len(t, underscore, 1)

	audio, err := store.FindProducts(ctx, domain.ProductFilter{CategoryID: "c1"})
	require.NoError(t, err)
	require.Len(t, audio, 1)
	assert.Equal(t, "c1", audio[0].CategoryID)
}

func testIncrementStockGuard(t *testing.T, store transactionalStore) {
	ctx := context.Background()
	seedProduct(t, store, "p1", "Cable", "3.50", 4)

	stock, err := store.IncrementStock(ctx, "p1", -3)
	require.NoError(t, err)
	assert.Equal(t, 1, stock)

	_, err = store.IncrementStock(ctx, "p1", -2)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	var stockErr *domain.StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "Cable", stockErr.ProductName)
	assert.Equal(t, 2, stockErr.Requested)
	assert.Equal(t, 1, stockErr.Available)

	stock, err = store.IncrementStock(ctx, "p1", 10)
	require.NoError(t, err)
	assert.Equal(t, 11, stock)

	_, err = store.IncrementStock(ctx, "missing", -1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testConcurrentDecrements(t *testing.T, store transactionalStore) {
	ctx := context.Background()
	seedProduct(t, store, "p1", "Ticket", "20", 50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 80; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.IncrementStock(ctx, "p1", -1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, succeeded)
	p, err := store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)
}

func testCategories(t *testing.T, store transactionalStore) {
	ctx := context.Background()
	require.NoError(t, store.CreateCategory(ctx, domain.Category{ID: "c2", Name: "B", CreatedAt: baseTime.Add(time.Minute), UpdatedAt: baseTime}))
	require.NoError(t, store.CreateCategory(ctx, domain.Category{ID: "c1", Name: "A", CreatedAt: baseTime, UpdatedAt: baseTime}))

	list, err := store.FindCategories(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c1", list[0].ID)

	require.NoError(t, store.UpdateCategory(ctx, domain.Category{ID: "c1", Name: "Audio", UpdatedAt: baseTime}))
	got, err := store.GetCategory(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Audio", got.Name)

	require.NoError(t, store.DeleteCategory(ctx, "c1"))
	_, err = store.GetCategory(ctx, "c1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, store.UpdateCategory(ctx, domain.Category{ID: "c1"}), domain.ErrNotFound)
}

func testCartVersioning(t *testing.T, store transactionalStore) {
	ctx := context.Background()
	cart := domain.NewCart("cart-1", baseTime)
	cart.AddQuantity("p1", 2)
	cart.AddQuantity("p2", 1)
	cart.TotalPrice = decimal.RequireFromString("12.50")
	require.NoError(t, store.CreateCart(ctx, cart))

	// The ID is taken
	assert.ErrorIs(t, store.CreateCart(ctx, domain.NewCart("cart-1", baseTime)), domain.ErrConflict)

	first, err := store.GetCart(ctx, "cart-1")
	require.NoError(t, err)
	second, err := store.GetCart(ctx, "cart-1")
	require.NoError(t, err)
	assert.Equal(t, []domain.CartItem{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}}, first.Items)
	assert.True(t, first.TotalPrice.Equal(decimal.RequireFromString("12.50")))

	first.AddQuantity("p1", 1)
	require.NoError(t, store.UpdateCart(ctx, first))
	assert.Equal(t, 1, first.Version)

	// second was read before the update and must not overwrite it
	second.AddQuantity("p3", 1)
	assert.ErrorIs(t, store.UpdateCart(ctx, second), domain.ErrConflict)

	stored, err := store.GetCart(ctx, "cart-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version)
	assert.Equal(t, []domain.CartItem{{ProductID: "p1", Quantity: 3}, {ProductID: "p2", Quantity: 1}}, stored.Items)

	require.NoError(t, store.DeleteCart(ctx, "cart-1"))
	_, err = store.GetCart(ctx, "cart-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, store.DeleteCart(ctx, "cart-1"), domain.ErrNotFound)
	assert.ErrorIs(t, store.UpdateCart(ctx, stored), domain.ErrNotFound)
}

func testOrders(t *testing.T, store transactionalStore) {
	ctx := context.Background()
	older := &domain.Order{
		ID:          "o1",
		UserID:      "u1",
		Items:       []domain.OrderItem{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}},
		TotalAmount: decimal.RequireFromString("30"),
		Status:      domain.OrderStatusPending,
		CreatedAt:   baseTime,
		UpdatedAt:   baseTime,
	}
	newer := &domain.Order{
		ID:          "o2",
		Items:       []domain.OrderItem{{ProductID: "p3", Quantity: 4}},
		TotalAmount: decimal.RequireFromString("8.40"),
		Status:      domain.OrderStatusPending,
		CreatedAt:   baseTime.Add(time.Hour),
		UpdatedAt:   baseTime.Add(time.Hour),
	}
	require.NoError(t, store.CreateOrder(ctx, older))
	require.NoError(t, store.CreateOrder(ctx, newer))

	got, err := store.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, older.Items, got.Items)
	assert.Equal(t, domain.OrderStatusPending, got.Status)
	assert.True(t, got.TotalAmount.Equal(older.TotalAmount))

	list, err := store.FindOrders(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "o2", list[0].ID)
	assert.Empty(t, list[0].UserID)
	assert.Equal(t, newer.Items, list[0].Items)
	assert.Equal(t, older.Items, list[1].Items)

	_, err = store.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testWithinTxRollback(t *testing.T, store transactionalStore) {
	ctx := context.Background()
	seedProduct(t, store, "p1", "Mouse", "15", 5)
	seedProduct(t, store, "p2", "Pad", "5", 1)

	order := &domain.Order{
		ID:          "o1",
		Items:       []domain.OrderItem{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 3}},
		TotalAmount: decimal.NewFromInt(45),
		Status:      domain.OrderStatusPending,
		CreatedAt:   baseTime,
		UpdatedAt:   baseTime,
	}

	err := store.WithinTx(ctx, func(tx port.InventoryTx) error {
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		for _, item := range order.Items {
			if _, err := tx.IncrementStock(ctx, item.ProductID, -item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	_, err = store.GetOrder(ctx, "o1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	p1, err := store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, p1.Stock)
}

func testWithinTxCommit(t *testing.T, store transactionalStore) {
	ctx := context.Background()
	seedProduct(t, store, "p1", "Mouse", "15", 5)

	order := &domain.Order{
		ID:          "o1",
		Items:       []domain.OrderItem{{ProductID: "p1", Quantity: 2}},
		TotalAmount: decimal.NewFromInt(30),
		Status:      domain.OrderStatusPending,
		CreatedAt:   baseTime,
		UpdatedAt:   baseTime,
	}

	err := store.WithinTx(ctx, func(tx port.InventoryTx) error {
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		_, err := tx.IncrementStock(ctx, "p1", -2)
		return err
	})
	require.NoError(t, err)

	_, err = store.GetOrder(ctx, "o1")
	require.NoError(t, err)
	p1, err := store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, p1.Stock)
}

func newTestCart(id, productID string, quantity int) *domain.Cart {
	cart := domain.NewCart(id, baseTime)
	cart.AddQuantity(productID, quantity)
	cart.TotalPrice = decimal.NewFromInt(int64(quantity))
	return cart
}
