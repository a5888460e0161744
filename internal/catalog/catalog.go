// Package catalog exposes product reads and the stock ledger.
//
// The settlement core treats the catalog as a collaborator: it reads
// prices and availability, and moves stock through two primitives:
//
//  1. DecrementStock, conditional on availability, never below zero
//  2. IncrementStock, for restock and reversal
//
// Each product carries a provenance: exactly one of direct, reposted
// (listed on behalf of another business), or re-owned (ownership
// transferred at a markup). Revenue distribution branches on it.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/mkalala/sokosettle/internal/metrics"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("invalid quantity")
)

// Product is a sellable catalog item.
type Product struct {
	ID         string    `json:"id"`
	StoreID    string    `json:"storeId"`
	BusinessID string    `json:"businessId"`
	Name       string    `json:"name"`
	Price      string    `json:"price"`
	Available  int       `json:"available"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ProvenanceKind tags how a product is listed.
type ProvenanceKind string

const (
	ProvenanceDirect   ProvenanceKind = "direct"
	ProvenanceReposted ProvenanceKind = "reposted"
	ProvenanceReOwned  ProvenanceKind = "reowned"
)

// Provenance is a product's listing origin. Exactly one kind applies;
// the kind decides which of the optional fields are meaningful.
type Provenance struct {
	ProductID string         `json:"productId"`
	Kind      ProvenanceKind `json:"kind"`

	// Reposted only: the business that listed the product and earns
	// commission per sale.
	RepostedBusinessID string `json:"repostedBusinessId,omitempty"`

	// ReOwned only: the original owner and the transfer prices.
	OldOwnerID string `json:"oldOwnerId,omitempty"`
	OldPrice   string `json:"oldPrice,omitempty"`
	NewPrice   string `json:"newPrice,omitempty"`
}

// Store persists products and provenance records.
type Store interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	PutProduct(ctx context.Context, p *Product) error
	DecrementStock(ctx context.Context, id string, qty int) error
	IncrementStock(ctx context.Context, id string, qty int) error
	// GetProvenance returns (nil, nil) when no record exists; a direct
	// sale has no provenance row.
	GetProvenance(ctx context.Context, productID string) (*Provenance, error)
	PutProvenance(ctx context.Context, p *Provenance) error
}

// Catalog wraps a Store with validation and instrumentation.
type Catalog struct {
	store Store
}

// New creates a new catalog.
func New(store Store) *Catalog {
	return &Catalog{store: store}
}

// GetProduct returns a product by ID.
func (c *Catalog) GetProduct(ctx context.Context, id string) (*Product, error) {
	return c.store.GetProduct(ctx, id)
}

// PutProduct creates or replaces a product.
func (c *Catalog) PutProduct(ctx context.Context, p *Product) error {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	return c.store.PutProduct(ctx, p)
}

// DecrementStock reserves qty units, failing with ErrInsufficientStock
// if availability would go negative. The check and the write are one
// conditional update, never a separate read+write.
func (c *Catalog) DecrementStock(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if err := c.store.DecrementStock(ctx, id, qty); err != nil {
		return err
	}
	metrics.StockMovementsTotal.WithLabelValues("decrement").Inc()
	return nil
}

// IncrementStock returns qty units to availability.
func (c *Catalog) IncrementStock(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if err := c.store.IncrementStock(ctx, id, qty); err != nil {
		return err
	}
	metrics.StockMovementsTotal.WithLabelValues("increment").Inc()
	return nil
}

// Provenance returns a product's provenance, or nil when it sells
// directly.
func (c *Catalog) Provenance(ctx context.Context, productID string) (*Provenance, error) {
	return c.store.GetProvenance(ctx, productID)
}

// PutProvenance records a product's provenance.
func (c *Catalog) PutProvenance(ctx context.Context, p *Provenance) error {
	return c.store.PutProvenance(ctx, p)
}
