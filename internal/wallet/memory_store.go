package wallet

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/mkalala/sokosettle/internal/idgen"
	"github.com/mkalala/sokosettle/internal/money"
)

// MemoryStore is an in-memory wallet store for demo/development mode.
// A single mutex covers both the running balances and the entry log,
// which gives the same check-then-write atomicity the Postgres store
// gets from serializable transactions.
type MemoryStore struct {
	balances map[string]*big.Int // "account|method" -> balance
	entries  []*Entry
	refunds  map[string]bool // "account:ref" -> already refunded
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory wallet store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]*big.Int),
		entries:  make([]*Entry, 0),
		refunds:  make(map[string]bool),
	}
}

func balanceKey(accountID, method string) string {
	return accountID + "|" + method
}

func (m *MemoryStore) Balance(ctx context.Context, accountID, method string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return money.Format(m.balanceLocked(accountID, method)), nil
}

// balanceLocked requires at least a read lock.
func (m *MemoryStore) balanceLocked(accountID, method string) *big.Int {
	if method != "" {
		if bal, ok := m.balances[balanceKey(accountID, method)]; ok {
			return bal
		}
		return big.NewInt(0)
	}

	total := big.NewInt(0)
	prefix := accountID + "|"
	for key, bal := range m.balances {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			total.Add(total, bal)
		}
	}
	return total
}

func (m *MemoryStore) Credit(ctx context.Context, accountID string, kind AccountKind, method, amount, reference, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	add, _ := money.Parse(amount)
	key := balanceKey(accountID, method)
	bal, ok := m.balances[key]
	if !ok {
		bal = big.NewInt(0)
		m.balances[key] = bal
	}
	bal.Add(bal, add)

	m.entries = append(m.entries, &Entry{
		ID:          idgen.WithPrefix("wle_"),
		AccountID:   accountID,
		AccountKind: kind,
		Method:      method,
		Amount:      money.Format(add),
		Reference:   reference,
		Description: description,
		CreatedAt:   time.Now(),
	})
	return nil
}

func (m *MemoryStore) Debit(ctx context.Context, accountID string, kind AccountKind, method, amount, reference, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.debitLocked(accountID, kind, method, amount, reference, description)
}

// debitLocked requires the write lock.
func (m *MemoryStore) debitLocked(accountID string, kind AccountKind, method, amount, reference, description string) error {
	sub, _ := money.Parse(amount)
	key := balanceKey(accountID, method)
	bal, ok := m.balances[key]
	if !ok || bal.Cmp(sub) < 0 {
		return ErrInsufficientBalance
	}
	bal.Sub(bal, sub)

	m.entries = append(m.entries, &Entry{
		ID:          idgen.WithPrefix("wle_"),
		AccountID:   accountID,
		AccountKind: kind,
		Method:      method,
		Amount:      money.Format(new(big.Int).Neg(sub)),
		Reference:   reference,
		Description: description,
		CreatedAt:   time.Now(),
	})
	return nil
}

func (m *MemoryStore) Refund(ctx context.Context, accountID string, kind AccountKind, method, amount, reference, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Idempotency: prevent duplicate refunds for the same reference
	refundKey := accountID + ":" + reference
	if m.refunds[refundKey] {
		return ErrDuplicateRefund
	}

	add, _ := money.Parse(amount)
	key := balanceKey(accountID, method)
	bal, ok := m.balances[key]
	if !ok {
		bal = big.NewInt(0)
		m.balances[key] = bal
	}
	bal.Add(bal, add)
	m.refunds[refundKey] = true

	m.entries = append(m.entries, &Entry{
		ID:          idgen.WithPrefix("wle_"),
		AccountID:   accountID,
		AccountKind: kind,
		Method:      method,
		Amount:      money.Format(add),
		Reference:   reference,
		Description: description,
		CreatedAt:   time.Now(),
	})
	return nil
}

func (m *MemoryStore) Transfer(ctx context.Context, req TransferRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Debit leg first; failure leaves nothing applied
	if err := m.debitLocked(req.FromAccount, req.FromKind, req.FromMethod,
		req.DebitAmount, req.Reference, req.Description); err != nil {
		return err
	}

	add, _ := money.Parse(req.CreditAmount)
	key := balanceKey(req.ToAccount, req.ToMethod)
	bal, ok := m.balances[key]
	if !ok {
		bal = big.NewInt(0)
		m.balances[key] = bal
	}
	bal.Add(bal, add)

	m.entries = append(m.entries, &Entry{
		ID:          idgen.WithPrefix("wle_"),
		AccountID:   req.ToAccount,
		AccountKind: req.ToKind,
		Method:      req.ToMethod,
		Amount:      money.Format(add),
		Reference:   req.Reference,
		Description: req.Description,
		CreatedAt:   time.Now(),
	})
	return nil
}

func (m *MemoryStore) History(ctx context.Context, accountID string, limit int) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Entry
	for i := len(m.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if m.entries[i].AccountID == accountID {
			result = append(result, m.entries[i])
		}
	}
	return result, nil
}
