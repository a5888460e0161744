package freelance

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed freelance store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the freelance tables.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS freelance_services (
			id          VARCHAR(64) PRIMARY KEY,
			business_id VARCHAR(64) NOT NULL,
			name        TEXT NOT NULL,
			price       NUMERIC(20, 2) NOT NULL CHECK (price >= 0),
			created_at  TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS freelance_orders (
			id                 VARCHAR(64) PRIMARY KEY,
			client_id          VARCHAR(64) NOT NULL,
			service_id         VARCHAR(64) NOT NULL,
			business_id        VARCHAR(64) NOT NULL,
			quantity           INT NOT NULL CHECK (quantity > 0),
			total_amount       NUMERIC(20, 2) NOT NULL CHECK (total_amount >= 0),
			escrow_amount      NUMERIC(20, 2) NOT NULL CHECK (escrow_amount >= 0),
			commission_percent BIGINT NOT NULL DEFAULT 0,
			status             VARCHAR(16) NOT NULL DEFAULT 'PENDING',
			escrow_status      VARCHAR(16) NOT NULL DEFAULT 'HELD',
			escrow_released_at TIMESTAMPTZ,
			payment_id         VARCHAR(64),
			created_at         TIMESTAMPTZ DEFAULT NOW(),
			updated_at         TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_freelance_orders_client
			ON freelance_orders(client_id, created_at DESC);
	`)
	return err
}

func (p *PostgresStore) PutService(ctx context.Context, s *Service) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO freelance_services (id, business_id, name, price, created_at)
		VALUES ($1, $2, $3, $4::NUMERIC, $5)
		ON CONFLICT (id) DO UPDATE SET name = $3, price = $4::NUMERIC
	`, s.ID, s.BusinessID, s.Name, s.Price, s.CreatedAt)
	return err
}

func (p *PostgresStore) GetService(ctx context.Context, id string) (*Service, error) {
	s := &Service{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, business_id, name, price::TEXT, created_at
		FROM freelance_services WHERE id = $1
	`, id).Scan(&s.ID, &s.BusinessID, &s.Name, &s.Price, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrServiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (p *PostgresStore) CreateOrder(ctx context.Context, o *Order) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO freelance_orders
			(id, client_id, service_id, business_id, quantity, total_amount,
			 escrow_amount, commission_percent, status, escrow_status,
			 payment_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8, $9, $10, NULLIF($11, ''), $12, $13)
	`, o.ID, o.ClientID, o.ServiceID, o.BusinessID, o.Quantity, o.TotalAmount,
		o.EscrowAmount, o.CommissionPercent, o.Status, o.EscrowStatus,
		o.PaymentID, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert freelance order: %w", err)
	}
	return nil
}

const orderColumns = `
	id, client_id, service_id, business_id, quantity, total_amount::TEXT,
	escrow_amount::TEXT, commission_percent, status, escrow_status,
	escrow_released_at, COALESCE(payment_id, ''), created_at, updated_at`

func (p *PostgresStore) GetOrder(ctx context.Context, id string) (*Order, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM freelance_orders WHERE id = $1`, id)
	o, err := scanOrder(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	return o, err
}

func (p *PostgresStore) ListByClient(ctx context.Context, clientID string, limit int) ([]*Order, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM freelance_orders
		WHERE client_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query freelance orders: %w", err)
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

func (p *PostgresStore) UpdateCommission(ctx context.Context, id string, pct int64) error {
	return p.update(ctx, `
		UPDATE freelance_orders SET commission_percent = $2, updated_at = $3
		WHERE id = $1
	`, id, pct, time.Now())
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	return p.update(ctx, `
		UPDATE freelance_orders SET status = $2, updated_at = $3
		WHERE id = $1
	`, id, status, time.Now())
}

func (p *PostgresStore) UpdateEscrow(ctx context.Context, id string, status EscrowStatus, releasedAt *time.Time) error {
	return p.update(ctx, `
		UPDATE freelance_orders
		SET escrow_status = $2, escrow_released_at = COALESCE($3, escrow_released_at),
		    updated_at = $4
		WHERE id = $1
	`, id, status, releasedAt, time.Now())
}

func (p *PostgresStore) SetPaymentID(ctx context.Context, id, paymentID string) error {
	return p.update(ctx, `
		UPDATE freelance_orders SET payment_id = $2 WHERE id = $1
	`, id, paymentID)
}

func (p *PostgresStore) update(ctx context.Context, query string, args ...any) error {
	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update freelance order: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func scanOrder(scan func(dest ...any) error) (*Order, error) {
	o := &Order{}
	var releasedAt sql.NullTime
	err := scan(&o.ID, &o.ClientID, &o.ServiceID, &o.BusinessID, &o.Quantity,
		&o.TotalAmount, &o.EscrowAmount, &o.CommissionPercent, &o.Status,
		&o.EscrowStatus, &releasedAt, &o.PaymentID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if releasedAt.Valid {
		t := releasedAt.Time
		o.EscrowReleasedAt = &t
	}
	return o, nil
}
