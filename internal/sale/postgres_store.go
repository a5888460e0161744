package sale

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed sale store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the sales and returns tables.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sales (
			id           VARCHAR(64) PRIMARY KEY,
			store_id     VARCHAR(64) NOT NULL,
			worker_id    VARCHAR(64) NOT NULL,
			client_id    VARCHAR(64),
			items        JSONB NOT NULL DEFAULT '[]',
			discount     NUMERIC(20, 2) NOT NULL DEFAULT 0,
			total_amount NUMERIC(20, 2) NOT NULL CHECK (total_amount >= 0),
			status       VARCHAR(16) NOT NULL DEFAULT 'OPEN',
			payment_id   VARCHAR(64),
			created_at   TIMESTAMPTZ DEFAULT NOW(),
			updated_at   TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_sales_store
			ON sales(store_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS sale_returns (
			id         VARCHAR(64) PRIMARY KEY,
			sale_id    VARCHAR(64) NOT NULL UNIQUE,
			reason     TEXT,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

func (p *PostgresStore) Create(ctx context.Context, s *Sale) error {
	items, err := json.Marshal(s.Items)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO sales
			(id, store_id, worker_id, client_id, items, discount, total_amount,
			 status, payment_id, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6::NUMERIC, $7::NUMERIC, $8, NULLIF($9, ''), $10, $11)
	`, s.ID, s.StoreID, s.WorkerID, s.ClientID, items, s.Discount, s.TotalAmount,
		s.Status, s.PaymentID, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert sale: %w", err)
	}
	return nil
}

const saleColumns = `
	id, store_id, worker_id, COALESCE(client_id, ''), items, discount::TEXT,
	total_amount::TEXT, status, COALESCE(payment_id, ''), created_at, updated_at`

func (p *PostgresStore) Get(ctx context.Context, id string) (*Sale, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	s, err := scanSale(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrSaleNotFound
	}
	return s, err
}

func (p *PostgresStore) ListByStore(ctx context.Context, storeID string, limit int) ([]*Sale, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+saleColumns+` FROM sales
		WHERE store_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, storeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	var result []*Sale
	for rows.Next() {
		s, err := scanSale(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (p *PostgresStore) ReplaceItems(ctx context.Context, id string, items []LineItem, total string) error {
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	result, err := p.db.ExecContext(ctx, `
		UPDATE sales SET items = $2, total_amount = $3::NUMERIC, updated_at = $4
		WHERE id = $1
	`, id, data, total, time.Now())
	if err != nil {
		return fmt.Errorf("failed to replace sale items: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrSaleNotFound
	}
	return nil
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE sales SET status = $2, updated_at = $3 WHERE id = $1
	`, id, status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update sale status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrSaleNotFound
	}
	return nil
}

func (p *PostgresStore) SetPaymentID(ctx context.Context, id, paymentID string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE sales SET payment_id = $2, updated_at = $3 WHERE id = $1
	`, id, paymentID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set sale payment id: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrSaleNotFound
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	return err
}

func (p *PostgresStore) CreateReturn(ctx context.Context, r *Return) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sale_returns (id, sale_id, reason, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4)
	`, r.ID, r.SaleID, r.Reason, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert return: %w", err)
	}
	return nil
}

func scanSale(scan func(dest ...any) error) (*Sale, error) {
	s := &Sale{}
	var items []byte
	err := scan(&s.ID, &s.StoreID, &s.WorkerID, &s.ClientID, &items, &s.Discount,
		&s.TotalAmount, &s.Status, &s.PaymentID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &s.Items); err != nil {
		return nil, fmt.Errorf("invalid items in database: %w", err)
	}
	return s, nil
}
