package payment

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory payment store for demo/development mode.
type MemoryStore struct {
	payments map[string]*Transaction
	byParent map[string]string // "kind|parentId" -> payment id
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory payment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments: make(map[string]*Transaction),
		byParent: make(map[string]string),
	}
}

func parentKey(kind ParentKind, parentID string) string {
	return string(kind) + "|" + parentID
}

func (m *MemoryStore) Create(ctx context.Context, tx *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := parentKey(tx.ParentKind, tx.ParentID)
	if _, exists := m.byParent[key]; exists {
		return ErrDuplicatePayment
	}

	cp := *tx
	m.payments[tx.ID] = &cp
	m.byParent[key] = tx.ID
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *MemoryStore) GetByParent(ctx context.Context, kind ParentKind, parentID string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byParent[parentKey(kind, parentID)]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *m.payments[id]
	return &cp, nil
}

func (m *MemoryStore) MarkCompleted(ctx context.Context, id, settledVia string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	if tx.Status != StatusPending {
		return ErrInvalidStatus
	}
	tx.Status = StatusCompleted
	tx.SettledVia = settledVia
	tx.TransactionDate = &at
	return nil
}

func (m *MemoryStore) UpdateAmount(ctx context.Context, id, amount string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	if tx.Status != StatusPending {
		return ErrInvalidStatus
	}
	tx.Amount = amount
	return nil
}

func (m *MemoryStore) MarkFailed(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	if tx.Status != StatusPending {
		return ErrInvalidStatus
	}
	tx.Status = StatusFailed
	return nil
}
