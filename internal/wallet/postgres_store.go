package wallet

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mkalala/sokosettle/internal/idgen"
	"github.com/mkalala/sokosettle/internal/money"
)

// PostgresStore implements Store with PostgreSQL.
//
// Balances live in wallet_balances with a CHECK (balance >= 0)
// constraint, so even a bug that slips past the conditional UPDATE
// cannot drive an account negative. Entries and balance updates always
// commit in the same transaction.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed wallet store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the wallet tables.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS wallet_balances (
			account_id VARCHAR(64) NOT NULL,
			method     VARCHAR(32) NOT NULL,
			balance    NUMERIC(20, 2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
			updated_at TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (account_id, method)
		);

		CREATE TABLE IF NOT EXISTS wallet_entries (
			id           VARCHAR(64) PRIMARY KEY,
			account_id   VARCHAR(64) NOT NULL,
			account_kind VARCHAR(16) NOT NULL,
			method       VARCHAR(32) NOT NULL,
			amount       NUMERIC(20, 2) NOT NULL,
			reference    VARCHAR(128),
			description  TEXT,
			created_at   TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_wallet_entries_account
			ON wallet_entries(account_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS wallet_refunds (
			account_id VARCHAR(64) NOT NULL,
			reference  VARCHAR(128) NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (account_id, reference)
		);
	`)
	return err
}

func (p *PostgresStore) Balance(ctx context.Context, accountID, method string) (string, error) {
	var balance string
	var err error
	if method != "" {
		err = p.db.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(balance), 0)::TEXT FROM wallet_balances
			WHERE account_id = $1 AND method = $2
		`, accountID, method).Scan(&balance)
	} else {
		err = p.db.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(balance), 0)::TEXT FROM wallet_balances
			WHERE account_id = $1
		`, accountID).Scan(&balance)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query balance: %w", err)
	}
	b, ok := money.Parse(balance)
	if !ok {
		return "", fmt.Errorf("invalid balance in database: %s", balance)
	}
	return money.Format(b), nil
}

func (p *PostgresStore) Credit(ctx context.Context, accountID string, kind AccountKind, method, amount, reference, description string) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		return creditTx(ctx, tx, accountID, kind, method, amount, reference, description)
	})
}

func (p *PostgresStore) Debit(ctx context.Context, accountID string, kind AccountKind, method, amount, reference, description string) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		return debitTx(ctx, tx, accountID, kind, method, amount, reference, description)
	})
}

func (p *PostgresStore) Refund(ctx context.Context, accountID string, kind AccountKind, method, amount, reference, description string) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO wallet_refunds (account_id, reference, created_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (account_id, reference) DO NOTHING
		`, accountID, reference)
		if err != nil {
			return fmt.Errorf("failed to record refund: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return ErrDuplicateRefund
		}
		return creditTx(ctx, tx, accountID, kind, method, amount, reference, description)
	})
}

func (p *PostgresStore) Transfer(ctx context.Context, req TransferRequest) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		if err := debitTx(ctx, tx, req.FromAccount, req.FromKind, req.FromMethod,
			req.DebitAmount, req.Reference, req.Description); err != nil {
			return err
		}
		return creditTx(ctx, tx, req.ToAccount, req.ToKind, req.ToMethod,
			req.CreditAmount, req.Reference, req.Description)
	})
}

func (p *PostgresStore) History(ctx context.Context, accountID string, limit int) ([]*Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, account_id, account_kind, method, amount::TEXT,
		       COALESCE(reference, ''), COALESCE(description, ''), created_at
		FROM wallet_entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.ID, &e.AccountID, &e.AccountKind, &e.Method,
			&e.Amount, &e.Reference, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (p *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func creditTx(ctx context.Context, tx *sql.Tx, accountID string, kind AccountKind, method, amount, reference, description string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_balances (account_id, method, balance, updated_at)
		VALUES ($1, $2, $3::NUMERIC, NOW())
		ON CONFLICT (account_id, method)
		DO UPDATE SET balance = wallet_balances.balance + $3::NUMERIC, updated_at = NOW()
	`, accountID, method, amount)
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	return insertEntryTx(ctx, tx, accountID, kind, method, amount, reference, description)
}

func debitTx(ctx context.Context, tx *sql.Tx, accountID string, kind AccountKind, method, amount, reference, description string) error {
	// Conditional debit: balance check and subtraction in one statement
	result, err := tx.ExecContext(ctx, `
		UPDATE wallet_balances
		SET balance = balance - $3::NUMERIC, updated_at = NOW()
		WHERE account_id = $1 AND method = $2 AND balance >= $3::NUMERIC
	`, accountID, method, amount)
	if err != nil {
		return fmt.Errorf("failed to debit balance: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrInsufficientBalance
	}

	amountBig, _ := money.Parse(amount)
	signed := money.Format(amountBig.Neg(amountBig))
	return insertEntryTx(ctx, tx, accountID, kind, method, signed, reference, description)
}

func insertEntryTx(ctx context.Context, tx *sql.Tx, accountID string, kind AccountKind, method, amount, reference, description string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_entries
			(id, account_id, account_kind, method, amount, reference, description, created_at)
		VALUES ($1, $2, $3, $4, $5::NUMERIC, NULLIF($6, ''), NULLIF($7, ''), $8)
	`, idgen.WithPrefix("wle_"), accountID, kind, method, amount, reference, description, time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}
