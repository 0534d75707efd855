package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLAdapter is the RecordStore over MySQL, Postgres or SQLite.
type SQLAdapter struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewSQLAdapter(db *sql.DB, dialect Dialect) *SQLAdapter {
	return &SQLAdapter{db: db, dialect: dialect, now: time.Now}
}

func (s *SQLAdapter) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLAdapter) Close() error {
	return s.db.Close()
}

func (s *SQLAdapter) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.db, s.dialect)
}

func (s *SQLAdapter) q(query string) string {
	return s.dialect.Rebind(query)
}

// inTx runs fn in a transaction, committing only if fn succeeds.
func (s *SQLAdapter) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Products

const productColumns = `id, name, description, price, stock, category_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	var category sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &category,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.CategoryID = category.String
	return &p, nil
}

func (s *SQLAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx,
		s.q(`SELECT `+productColumns+` FROM products WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("product", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return p, nil
}

// likeEscaper escapes LIKE wildcards using '!' which every dialect accepts as
// an ESCAPE character.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func (s *SQLAdapter) FindProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1 = 1`
	var args []any

	if filter.CategoryID != "" {
		query += ` AND category_id = ?`
		args = append(args, filter.CategoryID)
	}
	if filter.NameContains != "" {
		query += ` AND LOWER(name) LIKE ? ESCAPE '!'`
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(filter.NameContains))+"%")
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	out := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *SQLAdapter) CreateProduct(ctx context.Context, p domain.Product) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.Name, p.Description, p.Price, p.Stock, nullString(p.CategoryID),
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// UpdateProduct never writes stock; stock only moves through IncrementStock.
func (s *SQLAdapter) UpdateProduct(ctx context.Context, p domain.Product) error {
	result, err := s.db.ExecContext(ctx, s.q(`
		UPDATE products
		SET name = ?, description = ?, price = ?, category_id = ?, updated_at = ?
		WHERE id = ?`),
		p.Name, p.Description, p.Price, nullString(p.CategoryID), p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return requireAffected(result, "product", p.ID)
}

func (s *SQLAdapter) DeleteProduct(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.q(`DELETE FROM products WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return requireAffected(result, "product", id)
}

func (s *SQLAdapter) IncrementStock(ctx context.Context, id string, delta int) (int, error) {
	return incrementStock(ctx, s.db, s.dialect, id, delta, s.now())
}

// incrementStock applies delta in a single guarded UPDATE so concurrent
// callers can never drive stock below zero or lose each other's writes.
func incrementStock(ctx context.Context, q querier, d Dialect, id string, delta int, now time.Time) (int, error) {
	result, err := q.ExecContext(ctx, d.Rebind(`
		UPDATE products
		SET stock = stock + ?, updated_at = ?
		WHERE id = ? AND stock + ? >= 0`),
		delta, now, id, delta,
	)
	if err != nil {
		return 0, fmt.Errorf("update stock: %w", err)
	}

	rows, _ := result.RowsAffected()

	var name string
	var stock int
	err = q.QueryRowContext(ctx, d.Rebind(`SELECT name, stock FROM products WHERE id = ?`), id).
		Scan(&name, &stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.NewNotFoundError("product", id)
	}
	if err != nil {
		return 0, fmt.Errorf("query stock: %w", err)
	}

	if rows == 0 {
		return stock, &domain.StockError{
			ProductID:   id,
			ProductName: name,
			Requested:   -delta,
			Available:   stock,
		}
	}
	return stock, nil
}

func requireAffected(result sql.Result, entity, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return domain.NewNotFoundError(entity, id)
	}
	return nil
}

// Categories

func (s *SQLAdapter) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	var c domain.Category
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, name, description, created_at, updated_at
		FROM categories WHERE id = ?`), id,
	).Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("category", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query category: %w", err)
	}
	return &c, nil
}

func (s *SQLAdapter) FindCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM categories ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	out := []domain.Category{}
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLAdapter) CreateCategory(ctx context.Context, c domain.Category) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO categories (id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`),
		c.ID, c.Name, c.Description, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (s *SQLAdapter) UpdateCategory(ctx context.Context, c domain.Category) error {
	result, err := s.db.ExecContext(ctx, s.q(`
		UPDATE categories SET name = ?, description = ?, updated_at = ?
		WHERE id = ?`),
		c.Name, c.Description, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return requireAffected(result, "category", c.ID)
}

func (s *SQLAdapter) DeleteCategory(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.q(`DELETE FROM categories WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return requireAffected(result, "category", id)
}

// Carts

func (s *SQLAdapter) GetCart(ctx context.Context, id string) (*domain.Cart, error) {
	var c domain.Cart
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, total_price, version, created_at, updated_at
		FROM carts WHERE id = ?`), id,
	).Scan(&c.ID, &c.TotalPrice, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("cart", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT product_id, quantity FROM cart_items
		WHERE cart_id = ? ORDER BY position`), id)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	c.Items = []domain.CartItem{}
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ProductID, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		c.Items = append(c.Items, item)
	}
	return &c, rows.Err()
}

// CreateCart fails with ErrConflict when a cart with the same ID was
// created concurrently.
func (s *SQLAdapter) CreateCart(ctx context.Context, cart *domain.Cart) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, s.q(`SELECT 1 FROM carts WHERE id = ?`), cart.ID).Scan(&exists)
		if err == nil {
			return domain.ErrConflict
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("query cart: %w", err)
		}

		_, err = tx.ExecContext(ctx, s.q(`
			INSERT INTO carts (id, total_price, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`),
			cart.ID, cart.TotalPrice, cart.Version, cart.CreatedAt, cart.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert cart: %w", err)
		}
		return s.insertCartItems(ctx, tx, cart)
	})
}

func (s *SQLAdapter) UpdateCart(ctx context.Context, cart *domain.Cart) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, s.q(`
			UPDATE carts
			SET total_price = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?`),
			cart.TotalPrice, cart.UpdatedAt, cart.ID, cart.Version,
		)
		if err != nil {
			return fmt.Errorf("update cart: %w", err)
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			var exists int
			err := tx.QueryRowContext(ctx, s.q(`SELECT 1 FROM carts WHERE id = ?`), cart.ID).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return domain.NewNotFoundError("cart", cart.ID)
			}
			if err != nil {
				return fmt.Errorf("query cart: %w", err)
			}
			return domain.ErrConflict
		}

		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM cart_items WHERE cart_id = ?`), cart.ID); err != nil {
			return fmt.Errorf("clear cart items: %w", err)
		}
		return s.insertCartItems(ctx, tx, cart)
	})
	if err != nil {
		return err
	}

	cart.Version++
	return nil
}

func (s *SQLAdapter) insertCartItems(ctx context.Context, tx *sql.Tx, cart *domain.Cart) error {
	for i, item := range cart.Items {
		_, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO cart_items (cart_id, product_id, position, quantity)
			VALUES (?, ?, ?, ?)`),
			cart.ID, item.ProductID, i, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert cart item: %w", err)
		}
	}
	return nil
}

func (s *SQLAdapter) DeleteCart(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM cart_items WHERE cart_id = ?`), id); err != nil {
			return fmt.Errorf("delete cart items: %w", err)
		}
		result, err := tx.ExecContext(ctx, s.q(`DELETE FROM carts WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("delete cart: %w", err)
		}
		return requireAffected(result, "cart", id)
	})
}

// Orders

func (s *SQLAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	var user sql.NullString
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, user_id, total_amount, status, created_at, updated_at
		FROM orders WHERE id = ?`), id,
	).Scan(&o.ID, &user, &o.TotalAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("order", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	o.UserID = user.String

	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT product_id, quantity FROM order_items
		WHERE order_id = ? ORDER BY position`), id)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	o.Items = []domain.OrderItem{}
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	return &o, rows.Err()
}

func (s *SQLAdapter) FindOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, total_amount, status, created_at, updated_at
		FROM orders ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	out := []domain.Order{}
	index := map[string]int{}
	for rows.Next() {
		var o domain.Order
		var user sql.NullString
		if err := rows.Scan(&o.ID, &user, &o.TotalAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.UserID = user.String
		o.Items = []domain.OrderItem{}
		index[o.ID] = len(out)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	items, err := s.db.QueryContext(ctx, `
		SELECT order_id, product_id, quantity FROM order_items
		ORDER BY order_id, position`)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer items.Close()

	for items.Next() {
		var orderID string
		var item domain.OrderItem
		if err := items.Scan(&orderID, &item.ProductID, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if i, ok := index[orderID]; ok {
			out[i].Items = append(out[i].Items, item)
		}
	}
	return out, items.Err()
}

func (s *SQLAdapter) CreateOrder(ctx context.Context, order *domain.Order) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertOrder(ctx, tx, s.dialect, order)
	})
}

func insertOrder(ctx context.Context, q querier, d Dialect, order *domain.Order) error {
	_, err := q.ExecContext(ctx, d.Rebind(`
		INSERT INTO orders (id, user_id, total_amount, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		order.ID, nullString(order.UserID), order.TotalAmount, string(order.Status),
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		_, err := q.ExecContext(ctx, d.Rebind(`
			INSERT INTO order_items (order_id, position, product_id, quantity)
			VALUES (?, ?, ?, ?)`),
			order.ID, i, item.ProductID, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

// Transactions

func (s *SQLAdapter) WithinTx(ctx context.Context, fn func(tx port.InventoryTx) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&sqlTx{tx: tx, dialect: s.dialect, now: s.now})
	})
}

type sqlTx struct {
	tx      *sql.Tx
	dialect Dialect
	now     func() time.Time
}

func (t *sqlTx) CreateOrder(ctx context.Context, order *domain.Order) error {
	return insertOrder(ctx, t.tx, t.dialect, order)
}

func (t *sqlTx) IncrementStock(ctx context.Context, id string, delta int) (int, error) {
	return incrementStock(ctx, t.tx, t.dialect, id, delta, t.now())
}
