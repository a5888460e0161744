package revenue

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory token transaction store for
// demo/development mode.
type MemoryStore struct {
	transactions []*TokenTransaction
	seen         map[string]bool // "reference|productId" -> recorded
	mu           sync.RWMutex
}

// NewMemoryStore creates a new in-memory token transaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seen: make(map[string]bool),
	}
}

func (m *MemoryStore) Record(ctx context.Context, tt *TokenTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := tt.Reference + "|" + tt.SourceProductID
	if m.seen[key] {
		return ErrDuplicateDistribution
	}
	m.seen[key] = true

	cp := *tt
	m.transactions = append(m.transactions, &cp)
	return nil
}

func (m *MemoryStore) ListByBusiness(ctx context.Context, businessID string, limit int) ([]*TokenTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*TokenTransaction
	for i := len(m.transactions) - 1; i >= 0 && len(result) < limit; i-- {
		if m.transactions[i].BusinessID == businessID {
			cp := *m.transactions[i]
			result = append(result, &cp)
		}
	}
	return result, nil
}
