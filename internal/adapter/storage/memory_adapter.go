package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// MemoryStore is a process-local RecordStore. Every method copies values in
// and out so callers never alias stored state.
type MemoryStore struct {
	mu          sync.RWMutex
	products    map[string]domain.Product
	categories  map[string]domain.Category
	carts       map[string]*domain.Cart
	orders      map[string]domain.Order
	idempotency map[string]time.Time
	keyTTL      time.Duration
	now         func() time.Time
}

func NewMemoryStore(idempotencyKeyTTL time.Duration) *MemoryStore {
	if idempotencyKeyTTL <= 0 {
		idempotencyKeyTTL = defaultIdempotencyKeyTTL
	}
	return &MemoryStore{
		products:    make(map[string]domain.Product),
		categories:  make(map[string]domain.Category),
		carts:       make(map[string]*domain.Cart),
		orders:      make(map[string]domain.Order),
		idempotency: make(map[string]time.Time),
		keyTTL:      idempotencyKeyTTL,
		now:         time.Now,
	}
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

// Products

func (m *MemoryStore) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return nil, domain.NewNotFoundError("product", id)
	}
	return &p, nil
}

func (m *MemoryStore) FindProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	// Caser carries state and must not be shared between goroutines
	fold := cases.Fold()
	needle := fold.String(filter.NameContains)

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []domain.Product{}
	for _, p := range m.products {
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		if needle != "" && !strings.Contains(fold.String(p.Name), needle) {
			continue
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) CreateProduct(ctx context.Context, product domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.products[product.ID] = product
	return nil
}

// UpdateProduct leaves Stock alone; stock only moves through IncrementStock.
func (m *MemoryStore) UpdateProduct(ctx context.Context, product domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.products[product.ID]
	if !ok {
		return domain.NewNotFoundError("product", product.ID)
	}
	product.Stock = current.Stock
	product.CreatedAt = current.CreatedAt
	m.products[product.ID] = product
	return nil
}

func (m *MemoryStore) DeleteProduct(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[id]; !ok {
		return domain.NewNotFoundError("product", id)
	}
	delete(m.products, id)
	return nil
}

func (m *MemoryStore) IncrementStock(ctx context.Context, id string, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stock, _, err := m.incrementStockLocked(id, delta)
	return stock, err
}

func (m *MemoryStore) incrementStockLocked(id string, delta int) (int, func(), error) {
	p, ok := m.products[id]
	if !ok {
		return 0, nil, domain.NewNotFoundError("product", id)
	}
	if p.Stock+delta < 0 {
		return p.Stock, nil, &domain.StockError{
			ProductID:   p.ID,
			ProductName: p.Name,
			Requested:   -delta,
			Available:   p.Stock,
		}
	}

	before := p
	p.Stock += delta
	p.UpdatedAt = m.now()
	m.products[id] = p

	undo := func() {
		cur := m.products[id]
		cur.Stock -= delta
		cur.UpdatedAt = before.UpdatedAt
		m.products[id] = cur
	}
	return p.Stock, undo, nil
}

// Categories

func (m *MemoryStore) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.categories[id]
	if !ok {
		return nil, domain.NewNotFoundError("category", id)
	}
	return &c, nil
}

func (m *MemoryStore) FindCategories(ctx context.Context) ([]domain.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) CreateCategory(ctx context.Context, category domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.categories[category.ID] = category
	return nil
}

func (m *MemoryStore) UpdateCategory(ctx context.Context, category domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.categories[category.ID]
	if !ok {
		return domain.NewNotFoundError("category", category.ID)
	}
	category.CreatedAt = current.CreatedAt
	m.categories[category.ID] = category
	return nil
}

func (m *MemoryStore) DeleteCategory(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.categories[id]; !ok {
		return domain.NewNotFoundError("category", id)
	}
	delete(m.categories, id)
	return nil
}

// Carts

func (m *MemoryStore) GetCart(ctx context.Context, id string) (*domain.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.carts[id]
	if !ok {
		return nil, domain.NewNotFoundError("cart", id)
	}
	return c.Clone(), nil
}

func (m *MemoryStore) CreateCart(ctx context.Context, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.carts[cart.ID]; ok {
		return domain.ErrConflict
	}
	m.carts[cart.ID] = cart.Clone()
	return nil
}

func (m *MemoryStore) UpdateCart(ctx context.Context, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.carts[cart.ID]
	if !ok {
		return domain.NewNotFoundError("cart", cart.ID)
	}
	if current.Version != cart.Version {
		return domain.ErrConflict
	}

	cart.Version++
	m.carts[cart.ID] = cart.Clone()
	return nil
}

func (m *MemoryStore) DeleteCart(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.carts[id]; !ok {
		return domain.NewNotFoundError("cart", id)
	}
	delete(m.carts, id)
	return nil
}

// Orders

func (m *MemoryStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, domain.NewNotFoundError("order", id)
	}
	return copyOrder(o), nil
}

func (m *MemoryStore) FindOrders(ctx context.Context) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, *copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) CreateOrder(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orders[order.ID] = *copyOrder(*order)
	return nil
}

func copyOrder(o domain.Order) *domain.Order {
	cp := o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	return &cp
}

// Idempotency

func (m *MemoryStore) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expires, ok := m.idempotency[key]; ok && now.Before(expires) {
		return false, nil
	}
	m.idempotency[key] = now.Add(m.keyTTL)
	return true, nil
}

func (m *MemoryStore) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.idempotency, key)
	return nil
}

// Transactions

// WithinTx holds the store lock for the duration of fn and replays an undo
// log if fn fails.
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(tx port.InventoryTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{store: m}
	if err := fn(tx); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

type memoryTx struct {
	store *MemoryStore
	undo  []func()
}

func (t *memoryTx) CreateOrder(ctx context.Context, order *domain.Order) error {
	t.store.orders[order.ID] = *copyOrder(*order)
	t.undo = append(t.undo, func() { delete(t.store.orders, order.ID) })
	return nil
}

func (t *memoryTx) IncrementStock(ctx context.Context, id string, delta int) (int, error) {
	stock, undo, err := t.store.incrementStockLocked(id, delta)
	if err != nil {
		return stock, err
	}
	t.undo = append(t.undo, undo)
	return stock, nil
}
