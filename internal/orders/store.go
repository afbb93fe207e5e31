// Package orders holds the order domain: the SQLite-backed store, the
// CSV export writer, and the recorder that submits pipeline output to
// the store API.
package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"voice-order-logger/internal/models"
)

// MaxPageSize caps the listing page size.
const MaxPageSize = 100

// DefaultPageSize is used when the caller asks for nothing.
const DefaultPageSize = 20

// ErrNotFound is returned when an order id does not exist.
var ErrNotFound = errors.New("order not found")

// Store wraps the SQLite order table.
type Store struct {
	db    *sql.DB
	log   zerolog.Logger
	clock func() time.Time
}

// OpenStore opens (creating if needed) the order database at path.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{
		db:    db,
		log:   log.With().Str("component", "orders.store").Logger(),
		clock: time.Now,
	}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS orders (
    id TEXT PRIMARY KEY,
    item TEXT NOT NULL,
    price REAL NOT NULL,
    quantity INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at DESC);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts a new order from a validated draft.
func (s *Store) Create(ctx context.Context, draft models.OrderDraft) (models.Order, error) {
	order := models.Order{
		ID:        uuid.NewString(),
		Item:      draft.Item,
		Price:     draft.Price,
		Quantity:  draft.Quantity,
		CreatedAt: s.clock().UTC(),
	}
	if order.Quantity < 1 {
		order.Quantity = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (id, item, price, quantity, created_at) VALUES (?, ?, ?, ?, ?)`,
		order.ID, order.Item, order.Price, order.Quantity, order.CreatedAt,
	)
	if err != nil {
		return models.Order{}, fmt.Errorf("insert order: %w", err)
	}
	return order, nil
}

// Update replaces the mutable fields of an existing order.
func (s *Store) Update(ctx context.Context, id string, draft models.OrderDraft) (models.Order, error) {
	quantity := draft.Quantity
	if quantity < 1 {
		quantity = 1
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET item = ?, price = ?, quantity = ? WHERE id = ?`,
		draft.Item, draft.Price, quantity, id,
	)
	if err != nil {
		return models.Order{}, fmt.Errorf("update order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Order{}, fmt.Errorf("update order: %w", err)
	}
	if n == 0 {
		return models.Order{}, ErrNotFound
	}
	return s.get(ctx, id)
}

func (s *Store) get(ctx context.Context, id string) (models.Order, error) {
	var o models.Order
	err := s.db.QueryRowContext(ctx,
		`SELECT id, item, price, quantity, created_at FROM orders WHERE id = ?`, id,
	).Scan(&o.ID, &o.Item, &o.Price, &o.Quantity, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, ErrNotFound
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// List returns one page of orders, newest first, with the total count.
// page is floored at 1 and pageSize capped at MaxPageSize.
func (s *Store) List(ctx context.Context, page, pageSize int) ([]models.Order, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item, price, quantity, created_at FROM orders
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]models.Order, 0, pageSize)
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.Item, &o.Price, &o.Quantity, &o.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}

// All returns every order, newest first. Used by the CSV export.
func (s *Store) All(ctx context.Context) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item, price, quantity, created_at FROM orders
		 ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("dump orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.Item, &o.Price, &o.Quantity, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Stats computes the aggregate totals over all stored orders.
func (s *Store) Stats(ctx context.Context) (models.Stats, error) {
	var stats models.Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(quantity), 0), COALESCE(SUM(price * quantity), 0) FROM orders`,
	).Scan(&stats.TotalItems, &stats.TotalAmount)
	if err != nil {
		return models.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

// DeleteAll removes every order and returns the count removed.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM orders`)
	if err != nil {
		return 0, fmt.Errorf("delete orders: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
