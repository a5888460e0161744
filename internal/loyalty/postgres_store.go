package loyalty

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore implements Store with PostgreSQL. Accrual dedupe is a
// partial unique index on (program_id, reference); redemption uses a
// serializable transaction around the balance check and insert.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed loyalty store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the loyalty tables.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS loyalty_programs (
			id                  VARCHAR(64) PRIMARY KEY,
			business_id         VARCHAR(64) NOT NULL UNIQUE,
			name                TEXT NOT NULL,
			points_per_purchase BIGINT NOT NULL DEFAULT 0,
			tiers               JSONB NOT NULL DEFAULT '[]',
			created_at          TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS loyalty_points (
			id         VARCHAR(64) PRIMARY KEY,
			client_id  VARCHAR(64) NOT NULL,
			program_id VARCHAR(64) NOT NULL,
			points     BIGINT NOT NULL,
			reference  VARCHAR(128),
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_loyalty_points_client
			ON loyalty_points(client_id, program_id);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_loyalty_points_accrual
			ON loyalty_points(program_id, reference)
			WHERE reference IS NOT NULL AND points > 0;
	`)
	return err
}

func (p *PostgresStore) GetProgramByBusiness(ctx context.Context, businessID string) (*Program, error) {
	program, err := p.scanProgram(p.db.QueryRowContext(ctx, `
		SELECT id, business_id, name, points_per_purchase, tiers, created_at
		FROM loyalty_programs WHERE business_id = $1
	`, businessID))
	if err == ErrProgramNotFound {
		return nil, nil
	}
	return program, err
}

func (p *PostgresStore) GetProgram(ctx context.Context, id string) (*Program, error) {
	return p.scanProgram(p.db.QueryRowContext(ctx, `
		SELECT id, business_id, name, points_per_purchase, tiers, created_at
		FROM loyalty_programs WHERE id = $1
	`, id))
}

func (p *PostgresStore) scanProgram(row *sql.Row) (*Program, error) {
	program := &Program{}
	var tiers []byte
	err := row.Scan(&program.ID, &program.BusinessID, &program.Name,
		&program.PointsPerPurchase, &tiers, &program.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrProgramNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tiers, &program.Tiers); err != nil {
		return nil, fmt.Errorf("invalid tiers in database: %w", err)
	}
	return program, nil
}

func (p *PostgresStore) PutProgram(ctx context.Context, program *Program) error {
	tiers, err := json.Marshal(program.Tiers)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO loyalty_programs (id, business_id, name, points_per_purchase, tiers, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (business_id)
		DO UPDATE SET name = $3, points_per_purchase = $4, tiers = $5
	`, program.ID, program.BusinessID, program.Name, program.PointsPerPurchase, tiers, program.CreatedAt)
	return err
}

func (p *PostgresStore) Accrue(ctx context.Context, pt *PointsTransaction) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO loyalty_points (id, client_id, program_id, points, reference, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	`, pt.ID, pt.ClientID, pt.ProgramID, pt.Points, pt.Reference, pt.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateAccrual
		}
		return fmt.Errorf("failed to insert accrual: %w", err)
	}
	return nil
}

func (p *PostgresStore) Redeem(ctx context.Context, pt *PointsTransaction) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(points), 0) FROM loyalty_points
		WHERE client_id = $1 AND program_id = $2
	`, pt.ClientID, pt.ProgramID).Scan(&balance)
	if err != nil {
		return err
	}
	if balance+pt.Points < 0 {
		return ErrInsufficientPoints
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO loyalty_points (id, client_id, program_id, points, reference, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	`, pt.ID, pt.ClientID, pt.ProgramID, pt.Points, pt.Reference, pt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert redemption: %w", err)
	}
	return tx.Commit()
}

func (p *PostgresStore) Balance(ctx context.Context, clientID, programID string) (int64, error) {
	var balance int64
	var err error
	if programID != "" {
		err = p.db.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(points), 0) FROM loyalty_points
			WHERE client_id = $1 AND program_id = $2
		`, clientID, programID).Scan(&balance)
	} else {
		err = p.db.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(points), 0) FROM loyalty_points
			WHERE client_id = $1
		`, clientID).Scan(&balance)
	}
	return balance, err
}
