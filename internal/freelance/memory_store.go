package freelance

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory freelance store for demo/development
// mode.
type MemoryStore struct {
	services map[string]*Service
	orders   map[string]*Order
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory freelance store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		services: make(map[string]*Service),
		orders:   make(map[string]*Order),
	}
}

func (m *MemoryStore) PutService(ctx context.Context, s *Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.services[s.ID] = &cp
	return nil
}

func (m *MemoryStore) GetService(ctx context.Context, id string) (*Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) CreateOrder(ctx context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, id string) (*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) ListByClient(ctx context.Context, clientID string, limit int) ([]*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Order
	for _, o := range m.orders {
		if o.ClientID != clientID {
			continue
		}
		cp := *o
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

func (m *MemoryStore) UpdateCommission(ctx context.Context, id string, pct int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.CommissionPercent = pct
	o.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) UpdateEscrow(ctx context.Context, id string, status EscrowStatus, releasedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.EscrowStatus = status
	if releasedAt != nil {
		t := *releasedAt
		o.EscrowReleasedAt = &t
	}
	o.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) SetPaymentID(ctx context.Context, id, paymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.PaymentID = paymentID
	return nil
}
