package sale

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory sale store for demo/development mode.
type MemoryStore struct {
	sales   map[string]*Sale
	returns map[string]*Return
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory sale store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sales:   make(map[string]*Sale),
		returns: make(map[string]*Return),
	}
}

func (m *MemoryStore) Create(ctx context.Context, s *Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	cp.Items = append([]LineItem(nil), s.Items...)
	m.sales[s.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sales[id]
	if !ok {
		return nil, ErrSaleNotFound
	}
	cp := *s
	cp.Items = append([]LineItem(nil), s.Items...)
	return &cp, nil
}

func (m *MemoryStore) ListByStore(ctx context.Context, storeID string, limit int) ([]*Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Sale
	for _, s := range m.sales {
		if s.StoreID != storeID {
			continue
		}
		cp := *s
		cp.Items = append([]LineItem(nil), s.Items...)
		result = append(result, &cp)
	}
	for i := 0; i < len(result); i++ {
		for j := i + 1; j < len(result); j++ {
			if result[j].CreatedAt.After(result[i].CreatedAt) {
				result[i], result[j] = result[j], result[i]
			}
		}
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) ReplaceItems(ctx context.Context, id string, items []LineItem, total string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sales[id]
	if !ok {
		return ErrSaleNotFound
	}
	s.Items = append([]LineItem(nil), items...)
	s.TotalAmount = total
	s.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sales[id]
	if !ok {
		return ErrSaleNotFound
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) SetPaymentID(ctx context.Context, id, paymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sales[id]
	if !ok {
		return ErrSaleNotFound
	}
	s.PaymentID = paymentID
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sales, id)
	return nil
}

func (m *MemoryStore) CreateReturn(ctx context.Context, r *Return) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *r
	m.returns[r.ID] = &cp
	return nil
}
