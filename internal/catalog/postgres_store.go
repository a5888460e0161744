package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed catalog store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the catalog tables.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS products (
			id          VARCHAR(64) PRIMARY KEY,
			store_id    VARCHAR(64) NOT NULL,
			business_id VARCHAR(64) NOT NULL,
			name        TEXT NOT NULL,
			price       NUMERIC(20,2) NOT NULL,
			available   INTEGER NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ DEFAULT NOW(),
			updated_at  TIMESTAMPTZ DEFAULT NOW(),
			CONSTRAINT chk_available_nonneg CHECK (available >= 0)
		);

		CREATE INDEX IF NOT EXISTS idx_products_store ON products(store_id);

		CREATE TABLE IF NOT EXISTS product_provenance (
			product_id           VARCHAR(64) PRIMARY KEY REFERENCES products(id),
			kind                 VARCHAR(16) NOT NULL,
			reposted_business_id VARCHAR(64),
			old_owner_id         VARCHAR(64),
			old_price            NUMERIC(20,2),
			new_price            NUMERIC(20,2)
		);
	`)
	return err
}

func (p *PostgresStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	prod := &Product{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, store_id, business_id, name, price, available, created_at, updated_at
		FROM products WHERE id = $1
	`, id).Scan(&prod.ID, &prod.StoreID, &prod.BusinessID, &prod.Name, &prod.Price,
		&prod.Available, &prod.CreatedAt, &prod.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return prod, nil
}

func (p *PostgresStore) PutProduct(ctx context.Context, prod *Product) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO products (id, store_id, business_id, name, price, available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::NUMERIC(20,2), $6, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			store_id    = $2,
			business_id = $3,
			name        = $4,
			price       = $5::NUMERIC(20,2),
			available   = $6,
			updated_at  = NOW()
	`, prod.ID, prod.StoreID, prod.BusinessID, prod.Name, prod.Price, prod.Available)
	return err
}

// DecrementStock is a single conditional update: the WHERE clause makes
// the availability check and the write one atomic step, so concurrent
// settlements for the same product cannot both pass a stale check.
func (p *PostgresStore) DecrementStock(ctx context.Context, id string, qty int) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE products SET
			available  = available - $2,
			updated_at = NOW()
		WHERE id = $1 AND available >= $2
	`, id, qty)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Distinguish missing product from insufficient stock
		var exists bool
		if err := p.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrProductNotFound
		}
		return ErrInsufficientStock
	}
	return nil
}

func (p *PostgresStore) IncrementStock(ctx context.Context, id string, qty int) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE products SET
			available  = available + $2,
			updated_at = NOW()
		WHERE id = $1
	`, id, qty)
	if err != nil {
		return fmt.Errorf("failed to increment stock: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (p *PostgresStore) GetProvenance(ctx context.Context, productID string) (*Provenance, error) {
	prov := &Provenance{}
	var repostedBusinessID, oldOwnerID, oldPrice, newPrice sql.NullString
	err := p.db.QueryRowContext(ctx, `
		SELECT product_id, kind, reposted_business_id, old_owner_id, old_price, new_price
		FROM product_provenance WHERE product_id = $1
	`, productID).Scan(&prov.ProductID, &prov.Kind, &repostedBusinessID, &oldOwnerID, &oldPrice, &newPrice)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	prov.RepostedBusinessID = repostedBusinessID.String
	prov.OldOwnerID = oldOwnerID.String
	prov.OldPrice = oldPrice.String
	prov.NewPrice = newPrice.String
	return prov, nil
}

func (p *PostgresStore) PutProvenance(ctx context.Context, prov *Provenance) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO product_provenance (product_id, kind, reposted_business_id, old_owner_id, old_price, new_price)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, '')::NUMERIC(20,2), NULLIF($6, '')::NUMERIC(20,2))
		ON CONFLICT (product_id) DO UPDATE SET
			kind                 = $2,
			reposted_business_id = NULLIF($3, ''),
			old_owner_id         = NULLIF($4, ''),
			old_price            = NULLIF($5, '')::NUMERIC(20,2),
			new_price            = NULLIF($6, '')::NUMERIC(20,2)
	`, prov.ProductID, prov.Kind, prov.RepostedBusinessID, prov.OldOwnerID, prov.OldPrice, prov.NewPrice)
	return err
}
