package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/commerce-core/internal/inventory"
)

// PostgresInventoryStore implements inventory.Store over the
// product_variants, inventory_reservations and inventory_movements tables.
type PostgresInventoryStore struct {
	db *sql.DB // nil when this store is a transactional view
	q  querier
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func NewPostgresInventoryStore(db *sql.DB) *PostgresInventoryStore {
	return &PostgresInventoryStore{db: db, q: db}
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func (s *PostgresInventoryStore) GetVariant(ctx context.Context, variantID string) (*inventory.Variant, error) {
	var v inventory.Variant
	err := s.q.QueryRowContext(ctx,
		`SELECT id, store_id, sku, stock_quantity, updated_at
		 FROM product_variants
		 WHERE id = $1`,
		variantID,
	).Scan(&v.ID, &v.StoreID, &v.SKU, &v.StockQuantity, &v.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PostgresInventoryStore) UpdateVariantStock(ctx context.Context, variantID string, newStock int) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE product_variants
		 SET stock_quantity = $2, updated_at = $3
		 WHERE id = $1`,
		variantID, newStock, time.Now().UTC(),
	)
	return err
}

func (s *PostgresInventoryStore) ListVariants(ctx context.Context, storeID string) ([]*inventory.Variant, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, store_id, sku, stock_quantity, updated_at
		 FROM product_variants
		 WHERE store_id = $1`,
		storeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var variants []*inventory.Variant
	for rows.Next() {
		var v inventory.Variant
		if err := rows.Scan(&v.ID, &v.StoreID, &v.SKU, &v.StockQuantity, &v.UpdatedAt); err != nil {
			return nil, err
		}
		variants = append(variants, &v)
	}
	return variants, rows.Err()
}

func (s *PostgresInventoryStore) ActiveReservedQuantity(ctx context.Context, variantID string) (int, error) {
	var reserved int
	err := s.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(quantity), 0)
		 FROM inventory_reservations
		 WHERE product_variant_id = $1 AND released_at IS NULL`,
		variantID,
	).Scan(&reserved)
	return reserved, err
}

func (s *PostgresInventoryStore) InsertReservation(ctx context.Context, r *inventory.Reservation) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO inventory_reservations (id, order_id, product_variant_id, quantity, reserved_at, released_at)
		 VALUES ($1, $2, $3, $4, $5, NULL)`,
		r.ID, r.OrderID, r.ProductVariantID, r.Quantity, r.ReservedAt,
	)
	return err
}

func (s *PostgresInventoryStore) GetReservation(ctx context.Context, reservationID string) (*inventory.Reservation, error) {
	var r inventory.Reservation
	err := s.q.QueryRowContext(ctx,
		`SELECT id, order_id, product_variant_id, quantity, reserved_at, released_at
		 FROM inventory_reservations
		 WHERE id = $1`,
		reservationID,
	).Scan(&r.ID, &r.OrderID, &r.ProductVariantID, &r.Quantity, &r.ReservedAt, &r.ReleasedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// MarkReservationReleased stamps released_at only when it is still null, so
// two concurrent releases cannot both succeed.
func (s *PostgresInventoryStore) MarkReservationReleased(ctx context.Context, reservationID string) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE inventory_reservations
		 SET released_at = $2
		 WHERE id = $1 AND released_at IS NULL`,
		reservationID, time.Now().UTC(),
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *PostgresInventoryStore) ReservationsByOrder(ctx context.Context, orderID string) ([]*inventory.Reservation, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, order_id, product_variant_id, quantity, reserved_at, released_at
		 FROM inventory_reservations
		 WHERE order_id = $1`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reservations := make([]*inventory.Reservation, 0)
	for rows.Next() {
		var r inventory.Reservation
		if err := rows.Scan(&r.ID, &r.OrderID, &r.ProductVariantID, &r.Quantity, &r.ReservedAt, &r.ReleasedAt); err != nil {
			return nil, err
		}
		reservations = append(reservations, &r)
	}
	return reservations, rows.Err()
}

func (s *PostgresInventoryStore) InsertMovement(ctx context.Context, m *inventory.Movement) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO inventory_movements (id, product_variant_id, store_id, type, quantity, reason, reference_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.ProductVariantID, m.StoreID, string(m.Type), m.Quantity, m.Reason, m.ReferenceID, m.CreatedAt,
	)
	return err
}

func (s *PostgresInventoryStore) MovementsByVariant(ctx context.Context, variantID, storeID string, limit int) ([]*inventory.Movement, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, product_variant_id, store_id, type, quantity, reason, reference_id, created_at
		 FROM inventory_movements
		 WHERE product_variant_id = $1 AND store_id = $2
		 ORDER BY created_at DESC
		 LIMIT $3`,
		variantID, storeID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]*inventory.Movement, 0)
	for rows.Next() {
		var m inventory.Movement
		var typ string
		if err := rows.Scan(&m.ID, &m.ProductVariantID, &m.StoreID, &typ, &m.Quantity, &m.Reason, &m.ReferenceID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = inventory.MovementType(typ)
		movements = append(movements, &m)
	}
	return movements, rows.Err()
}

// WithinTx runs fn against a transactional view of the store. Nested calls
// join the enclosing transaction.
func (s *PostgresInventoryStore) WithinTx(ctx context.Context, fn func(tx inventory.Store) error) error {
	if s.db == nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(&PostgresInventoryStore{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
