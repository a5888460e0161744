package revenue

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore implements Store with PostgreSQL. Dedupe is a unique
// constraint on (reference, source_product_id).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed token transaction
// store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the token_transactions table.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS token_transactions (
			id                VARCHAR(64) PRIMARY KEY,
			business_id       VARCHAR(64) NOT NULL,
			source_product_id VARCHAR(64) NOT NULL,
			amount            NUMERIC(20, 2) NOT NULL CHECK (amount >= 0),
			type              VARCHAR(32) NOT NULL,
			reference         VARCHAR(128) NOT NULL,
			created_at        TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE (reference, source_product_id)
		);
		CREATE INDEX IF NOT EXISTS idx_token_transactions_business
			ON token_transactions(business_id, created_at DESC);
	`)
	return err
}

func (p *PostgresStore) Record(ctx context.Context, tt *TokenTransaction) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO token_transactions
			(id, business_id, source_product_id, amount, type, reference, created_at)
		VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7)
	`, tt.ID, tt.BusinessID, tt.SourceProductID, tt.Amount, tt.Type, tt.Reference, tt.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateDistribution
		}
		return fmt.Errorf("failed to insert token transaction: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListByBusiness(ctx context.Context, businessID string, limit int) ([]*TokenTransaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, business_id, source_product_id, amount::TEXT, type, reference, created_at
		FROM token_transactions
		WHERE business_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, businessID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query token transactions: %w", err)
	}
	defer rows.Close()

	var result []*TokenTransaction
	for rows.Next() {
		tt := &TokenTransaction{}
		if err := rows.Scan(&tt.ID, &tt.BusinessID, &tt.SourceProductID,
			&tt.Amount, &tt.Type, &tt.Reference, &tt.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, tt)
	}
	return result, rows.Err()
}
