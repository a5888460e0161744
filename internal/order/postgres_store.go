package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore implements Store with PostgreSQL. Line items are stored
// as JSONB on the order row: they are immutable snapshots, never
// queried independently.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed order store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the orders table.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS orders (
			id               VARCHAR(64) PRIMARY KEY,
			client_id        VARCHAR(64) NOT NULL,
			items            JSONB NOT NULL DEFAULT '[]',
			delivery_fee     NUMERIC(20, 2) NOT NULL DEFAULT 0,
			delivery_address TEXT,
			total_amount     NUMERIC(20, 2) NOT NULL CHECK (total_amount >= 0),
			status           VARCHAR(16) NOT NULL DEFAULT 'PENDING',
			payment_id       VARCHAR(64),
			created_at       TIMESTAMPTZ DEFAULT NOW(),
			updated_at       TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_orders_client
			ON orders(client_id, created_at DESC);
	`)
	return err
}

func (p *PostgresStore) Create(ctx context.Context, o *Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO orders
			(id, client_id, items, delivery_fee, delivery_address, total_amount,
			 status, payment_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4::NUMERIC, NULLIF($5, ''), $6::NUMERIC, $7, NULLIF($8, ''), $9, $10)
	`, o.ID, o.ClientID, items, o.DeliveryFee, o.DeliveryAddress, o.TotalAmount,
		o.Status, o.PaymentID, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

const orderColumns = `
	id, client_id, items, delivery_fee::TEXT, COALESCE(delivery_address, ''),
	total_amount::TEXT, status, COALESCE(payment_id, ''), created_at, updated_at`

func (p *PostgresStore) Get(ctx context.Context, id string) (*Order, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	return o, err
}

func (p *PostgresStore) ListByClient(ctx context.Context, clientID string, limit int) ([]*Order, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE client_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var result []*Order
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	return p.update(ctx, `
		UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1
	`, id, status, time.Now())
}

func (p *PostgresStore) SetPaymentID(ctx context.Context, id, paymentID string) error {
	return p.update(ctx, `
		UPDATE orders SET payment_id = $2, updated_at = $3 WHERE id = $1
	`, id, paymentID, time.Now())
}

func (p *PostgresStore) update(ctx context.Context, query string, args ...any) error {
	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func scanOrder(scan func(dest ...any) error) (*Order, error) {
	o := &Order{}
	var items []byte
	err := scan(&o.ID, &o.ClientID, &items, &o.DeliveryFee, &o.DeliveryAddress,
		&o.TotalAmount, &o.Status, &o.PaymentID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("invalid items in database: %w", err)
	}
	return o, nil
}
