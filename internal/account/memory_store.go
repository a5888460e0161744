package account

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory account store for demo/development mode.
type MemoryStore struct {
	clients    map[string]*Client
	businesses map[string]*Business
	workers    map[string]*Worker
	mu         sync.RWMutex
}

// NewMemoryStore creates a new in-memory account store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients:    make(map[string]*Client),
		businesses: make(map[string]*Business),
		workers:    make(map[string]*Worker),
	}
}

func (m *MemoryStore) GetClient(ctx context.Context, id string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.clients[id]
	if !ok {
		return nil, ErrClientNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) GetBusiness(ctx context.Context, id string) (*Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.businesses[id]
	if !ok {
		return nil, ErrBusinessNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) GetWorker(ctx context.Context, id string) (*Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.workers[id]
	if !ok {
		return nil, ErrWorkerNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *MemoryStore) PutClient(ctx context.Context, c *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *c
	m.clients[c.ID] = &cp
	return nil
}

func (m *MemoryStore) PutBusiness(ctx context.Context, b *Business) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *b
	m.businesses[b.ID] = &cp
	return nil
}

func (m *MemoryStore) PutWorker(ctx context.Context, w *Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *w
	m.workers[w.ID] = &cp
	return nil
}

func (m *MemoryStore) IncrementProductsSold(ctx context.Context, businessID string, n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.businesses[businessID]
	if !ok {
		return ErrBusinessNotFound
	}
	b.TotalProductsSold += n
	return nil
}
