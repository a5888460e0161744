package payment

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements Store with PostgreSQL. The one-payment-per-
// parent rule is enforced by a unique constraint on (parent_kind,
// parent_id), so it holds even across racing processes.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed payment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the payments table.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS payments (
			id               VARCHAR(64) PRIMARY KEY,
			parent_kind      VARCHAR(32) NOT NULL,
			parent_id        VARCHAR(64) NOT NULL,
			payer_id         VARCHAR(64) NOT NULL,
			amount           NUMERIC(20, 2) NOT NULL CHECK (amount >= 0),
			method           VARCHAR(32) NOT NULL,
			settled_via      VARCHAR(32),
			status           VARCHAR(16) NOT NULL DEFAULT 'PENDING',
			transaction_date TIMESTAMPTZ,
			created_at       TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE (parent_kind, parent_id)
		);
	`)
	return err
}

func (p *PostgresStore) Create(ctx context.Context, tx *Transaction) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO payments
			(id, parent_kind, parent_id, payer_id, amount, method, status, created_at)
		VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8)
	`, tx.ID, tx.ParentKind, tx.ParentID, tx.PayerID, tx.Amount, tx.Method, tx.Status, tx.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicatePayment
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Transaction, error) {
	return p.scanOne(p.db.QueryRowContext(ctx, `
		SELECT id, parent_kind, parent_id, payer_id, amount::TEXT, method,
		       COALESCE(settled_via, ''), status, transaction_date, created_at
		FROM payments WHERE id = $1
	`, id))
}

func (p *PostgresStore) GetByParent(ctx context.Context, kind ParentKind, parentID string) (*Transaction, error) {
	return p.scanOne(p.db.QueryRowContext(ctx, `
		SELECT id, parent_kind, parent_id, payer_id, amount::TEXT, method,
		       COALESCE(settled_via, ''), status, transaction_date, created_at
		FROM payments WHERE parent_kind = $1 AND parent_id = $2
	`, kind, parentID))
}

func (p *PostgresStore) scanOne(row *sql.Row) (*Transaction, error) {
	tx := &Transaction{}
	var txDate sql.NullTime
	err := row.Scan(&tx.ID, &tx.ParentKind, &tx.ParentID, &tx.PayerID, &tx.Amount,
		&tx.Method, &tx.SettledVia, &tx.Status, &txDate, &tx.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	if txDate.Valid {
		t := txDate.Time
		tx.TransactionDate = &t
	}
	return tx, nil
}

func (p *PostgresStore) MarkCompleted(ctx context.Context, id, settledVia string, at time.Time) error {
	return p.transition(ctx, id, `
		UPDATE payments
		SET status = 'COMPLETED', settled_via = NULLIF($2, ''), transaction_date = $3
		WHERE id = $1 AND status = 'PENDING'
	`, settledVia, at)
}

func (p *PostgresStore) MarkFailed(ctx context.Context, id string) error {
	return p.transition(ctx, id, `
		UPDATE payments SET status = 'FAILED'
		WHERE id = $1 AND status = 'PENDING'
	`)
}

func (p *PostgresStore) UpdateAmount(ctx context.Context, id, amount string) error {
	return p.transition(ctx, id, `
		UPDATE payments SET amount = $2::NUMERIC
		WHERE id = $1 AND status = 'PENDING'
	`, amount)
}

func (p *PostgresStore) transition(ctx context.Context, id, query string, args ...any) error {
	result, err := p.db.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		var exists bool
		if err := p.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM payments WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrPaymentNotFound
		}
		return ErrInvalidStatus
	}
	return nil
}
