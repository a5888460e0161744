package catalog

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory catalog store for demo/development mode.
type MemoryStore struct {
	products   map[string]*Product
	provenance map[string]*Provenance
	mu         sync.RWMutex
}

// NewMemoryStore creates a new in-memory catalog store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:   make(map[string]*Product),
		provenance: make(map[string]*Provenance),
	}
}

func (m *MemoryStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) PutProduct(ctx context.Context, p *Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *MemoryStore) DecrementStock(ctx context.Context, id string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return ErrProductNotFound
	}
	if p.Available < qty {
		return ErrInsufficientStock
	}
	p.Available -= qty
	p.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) IncrementStock(ctx context.Context, id string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return ErrProductNotFound
	}
	p.Available += qty
	p.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) GetProvenance(ctx context.Context, productID string) (*Provenance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.provenance[productID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) PutProvenance(ctx context.Context, p *Provenance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	m.provenance[p.ProductID] = &cp
	return nil
}
