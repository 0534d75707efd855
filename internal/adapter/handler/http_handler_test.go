package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/port"
)

var fixedNow = time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func sequence(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error { return errors.New("connection refused") }

type testServer struct {
	store   *storage.MemoryStore
	handler http.Handler
}

func newTestServer(t *testing.T, health HealthChecker) *testServer {
	t.Helper()
	store := storage.NewMemoryStore(time.Hour)
	return newTestServerWith(t, store, store, health)
}

// newTestServerWith lets the inventory guard read products through a
// different repository than the one it writes to.
func newTestServerWith(t *testing.T, store *storage.MemoryStore, products port.ProductRepository, health HealthChecker) *testServer {
	t.Helper()
	if health == nil {
		health = store
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	guard := service.NewInventoryGuard(products)
	catalog := service.NewCatalogService(store, store,
		service.WithCatalogIDs(sequence("id")),
		service.WithCatalogClock(clock),
	)
	carts := service.NewCartService(store, guard, service.NewTotaler(store, service.SkipOnMissing),
		service.WithCartIDs(sequence("cart")),
		service.WithCartClock(clock),
		service.WithCartLogger(logger),
	)
	orders := service.NewOrderService(store, store, guard,
		service.WithIdempotency(store),
		service.WithOrderIDs(sequence("order")),
		service.WithOrderClock(clock),
		service.WithOrderLogger(logger),
	)

	h := NewHTTPHandler(catalog, carts, orders, health, logger)
	return &testServer{store: store, handler: h.Routes()}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestCheckoutFlow(t *testing.T) {
	s := newTestServer(t, nil)
	g := newGoldie(t)

	rec := s.do(t, http.MethodPost, "/api/categories", `{"name":"Kitchen"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/products",
		`{"name":"Mug","price":"12.5","category":"id-1","description":"Stoneware","stock":5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	g.Assert(t, "product_created", rec.Body.Bytes())

	rec = s.do(t, http.MethodPost, "/api/cart", `{"productId":"id-2","quantity":2}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	g.Assert(t, "cart_created", rec.Body.Bytes())

	rec = s.do(t, http.MethodPut, "/api/cart/cart-1", `{"productId":"id-2","quantity":3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	g.Assert(t, "cart_quantity_set", rec.Body.Bytes())

	rec = s.do(t, http.MethodPost, "/api/orders", `{"cartId":"cart-1","user":"alice"}`, "Idempotency-Key", "req-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	g.Assert(t, "order_created", rec.Body.Bytes())

	// The cart is consumed and stock is taken
	rec = s.do(t, http.MethodGet, "/api/cart/cart-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"Cart not found"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/products/id-2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stock":2`)

	rec = s.do(t, http.MethodPost, "/api/orders", `{"cartId":"cart-1","user":"alice"}`, "Idempotency-Key", "req-1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"message":"Duplicate request"}`, rec.Body.String())

	// Orders keep a bare reference once the product is gone
	rec = s.do(t, http.MethodDelete, "/api/products/id-2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/orders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	g.Assert(t, "orders_after_product_deleted", rec.Body.Bytes())
}

func TestUpsertCartItem_ExistingCartReturnsOK(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(t, http.MethodPost, "/api/categories", `{"name":"Kitchen"}`)
	s.do(t, http.MethodPost, "/api/products", `{"name":"Mug","price":"3","category":"id-1","stock":10}`)

	rec := s.do(t, http.MethodPost, "/api/cart", `{"productId":"id-2","quantity":1}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/cart", `{"cartId":"cart-1","productId":"id-2","quantity":4}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"quantity":5`)
	assert.Contains(t, rec.Body.String(), `"totalPrice":"15"`)

	rec = s.do(t, http.MethodDelete, "/api/cart/cart-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Cart deleted"}`, rec.Body.String())
}

func TestErrorResponses(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(t, http.MethodPost, "/api/categories", `{"name":"Kitchen"}`)
	s.do(t, http.MethodPost, "/api/products", `{"name":"Mug","price":"3","category":"id-1","stock":1}`)
	s.do(t, http.MethodPost, "/api/cart", `{"productId":"id-2","quantity":1}`)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		want   string
	}{
		{"malformed body", http.MethodPost, "/api/cart", `{`, http.StatusBadRequest, `{"message":"invalid request body"}`},
		{"zero quantity", http.MethodPost, "/api/cart", `{"productId":"id-2","quantity":0}`, http.StatusBadRequest, `{"message":"quantity is required"}`},
		{"unknown product", http.MethodPost, "/api/cart", `{"productId":"nope","quantity":1}`, http.StatusNotFound, `{"message":"Product not found"}`},
		{"insufficient stock", http.MethodPost, "/api/cart", `{"productId":"id-2","quantity":2}`, http.StatusBadRequest, `{"message":"Insufficient stock for product: Mug"}`},
		{"product not in cart", http.MethodPut, "/api/cart/cart-1", `{"productId":"other","quantity":1}`, http.StatusNotFound, `{"message":"Product not in cart"}`},
		{"convert missing cart", http.MethodPost, "/api/orders", `{"cartId":"nope"}`, http.StatusBadRequest, `{"message":"Cart not found or empty"}`},
		{"unknown order", http.MethodGet, "/api/orders/nope", "", http.StatusNotFound, `{"message":"Order not found"}`},
		{"unknown category", http.MethodPost, "/api/products", `{"name":"x","price":"1","category":"nope"}`, http.StatusBadRequest, `{"message":"category does not exist"}`},
		{"unknown route", http.MethodGet, "/api/nothing", "", http.StatusNotFound, `{"message":"Route not found"}`},
		{"method not allowed", http.MethodPatch, "/api/orders", "", http.StatusMethodNotAllowed, `{"message":"Method not allowed"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestListProducts_QueryFilters(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(t, http.MethodPost, "/api/categories", `{"name":"Kitchen"}`)
	s.do(t, http.MethodPost, "/api/categories", `{"name":"Garden"}`)
	s.do(t, http.MethodPost, "/api/products", `{"name":"Coffee Mug","price":"3","category":"id-1"}`)
	s.do(t, http.MethodPost, "/api/products", `{"name":"Garden Mug","price":"4","category":"id-2"}`)
	s.do(t, http.MethodPost, "/api/products", `{"name":"Trowel","price":"9","category":"id-2"}`)

	rec := s.do(t, http.MethodGet, "/api/products?search=mug", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, strings.Count(rec.Body.String(), `"id":`))

	rec = s.do(t, http.MethodGet, "/api/products?search=mug&category=id-2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Garden Mug")
	assert.NotContains(t, rec.Body.String(), "Coffee Mug")

	rec = s.do(t, http.MethodGet, "/api/products?search=nothing", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHealthCheck(t *testing.T) {
	rec := newTestServer(t, nil).do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = newTestServer(t, failingPinger{}).do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable"}`, rec.Body.String())
}

// staleStockReads over-reports stock for the listed products, so a sale can
// pass the pre-check and fail at the decrement.
type staleStockReads struct {
	*storage.MemoryStore
	reported map[string]int
}

func (s *staleStockReads) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.MemoryStore.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if stock, ok := s.reported[id]; ok {
		p.Stock = stock
	}
	return p, nil
}

func TestCreateOrder_PartialStockAdjustment(t *testing.T) {
	store := storage.NewMemoryStore(time.Hour)
	s := newTestServerWith(t, store, &staleStockReads{MemoryStore: store, reported: map[string]int{"id-3": 50}}, nil)

	rec := s.do(t, http.MethodPost, "/api/categories", `{"name":"Lighting"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	for _, body := range []string{
		`{"name":"Lamp","price":"10","category":"id-1","stock":4}`,
		`{"name":"Shade","price":"3","category":"id-1","stock":1}`,
		`{"name":"Bulb","price":"1","category":"id-1","stock":6}`,
	} {
		rec := s.do(t, http.MethodPost, "/api/products", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	for _, body := range []string{
		`{"productId":"id-2","quantity":1}`,
		`{"cartId":"cart-1","productId":"id-3","quantity":2}`,
		`{"cartId":"cart-1","productId":"id-4","quantity":2}`,
	} {
		rec := s.do(t, http.MethodPost, "/api/cart", body)
		require.Less(t, rec.Code, 300, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/api/orders", `{"cartId":"cart-1"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"Order created but stock adjustment incomplete","orderId":"order-1"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/cart/cart-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/orders/order-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Lines either side of the failed one were still applied
	for id, want := range map[string]int{"id-2": 3, "id-3": 1, "id-4": 4} {
		p, err := store.GetProduct(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, want, p.Stock, id)
	}
}
