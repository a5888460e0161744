package account

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed account store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the account tables.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS clients (
			id         VARCHAR(64) PRIMARY KEY,
			name       TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS businesses (
			id                  VARCHAR(64) PRIMARY KEY,
			name                TEXT NOT NULL,
			total_products_sold BIGINT NOT NULL DEFAULT 0,
			created_at          TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS workers (
			id          VARCHAR(64) PRIMARY KEY,
			business_id VARCHAR(64) NOT NULL,
			store_id    VARCHAR(64) NOT NULL,
			name        TEXT NOT NULL,
			created_at  TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

func (p *PostgresStore) GetClient(ctx context.Context, id string) (*Client, error) {
	c := &Client{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM clients WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (p *PostgresStore) GetBusiness(ctx context.Context, id string) (*Business, error) {
	b := &Business{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, name, total_products_sold, created_at FROM businesses WHERE id = $1
	`, id).Scan(&b.ID, &b.Name, &b.TotalProductsSold, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrBusinessNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (p *PostgresStore) GetWorker(ctx context.Context, id string) (*Worker, error) {
	w := &Worker{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, business_id, store_id, name, created_at FROM workers WHERE id = $1
	`, id).Scan(&w.ID, &w.BusinessID, &w.StoreID, &w.Name, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrWorkerNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (p *PostgresStore) PutClient(ctx context.Context, c *Client) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, created_at) VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET name = $2
	`, c.ID, c.Name)
	return err
}

func (p *PostgresStore) PutBusiness(ctx context.Context, b *Business) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO businesses (id, name, created_at) VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET name = $2
	`, b.ID, b.Name)
	return err
}

func (p *PostgresStore) PutWorker(ctx context.Context, w *Worker) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO workers (id, business_id, store_id, name, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET business_id = $2, store_id = $3, name = $4
	`, w.ID, w.BusinessID, w.StoreID, w.Name)
	return err
}

func (p *PostgresStore) IncrementProductsSold(ctx context.Context, businessID string, n int64) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE businesses SET total_products_sold = total_products_sold + $2
		WHERE id = $1
	`, businessID, n)
	if err != nil {
		return fmt.Errorf("failed to increment products sold: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrBusinessNotFound
	}
	return nil
}
