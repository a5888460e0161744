package loyalty

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory loyalty store for demo/development mode.
type MemoryStore struct {
	programs     map[string]*Program
	byBusiness   map[string]string // businessID -> program id
	transactions []*PointsTransaction
	accrued      map[string]bool // "programId|ref" -> recorded
	mu           sync.RWMutex
}

// NewMemoryStore creates a new in-memory loyalty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		programs:   make(map[string]*Program),
		byBusiness: make(map[string]string),
		accrued:    make(map[string]bool),
	}
}

func (m *MemoryStore) GetProgramByBusiness(ctx context.Context, businessID string) (*Program, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byBusiness[businessID]
	if !ok {
		return nil, nil
	}
	cp := *m.programs[id]
	return &cp, nil
}

func (m *MemoryStore) GetProgram(ctx context.Context, id string) (*Program, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.programs[id]
	if !ok {
		return nil, ErrProgramNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) PutProgram(ctx context.Context, p *Program) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	m.programs[p.ID] = &cp
	m.byBusiness[p.BusinessID] = p.ID
	return nil
}

func (m *MemoryStore) Accrue(ctx context.Context, pt *PointsTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pt.ProgramID + "|" + pt.Reference
	if pt.Reference != "" && m.accrued[key] {
		return ErrDuplicateAccrual
	}
	if pt.Reference != "" {
		m.accrued[key] = true
	}

	cp := *pt
	m.transactions = append(m.transactions, &cp)
	return nil
}

func (m *MemoryStore) Redeem(ctx context.Context, pt *PointsTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	balance := m.balanceLocked(pt.ClientID, pt.ProgramID)
	if balance+pt.Points < 0 {
		return ErrInsufficientPoints
	}

	cp := *pt
	m.transactions = append(m.transactions, &cp)
	return nil
}

func (m *MemoryStore) Balance(ctx context.Context, clientID, programID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balanceLocked(clientID, programID), nil
}

// balanceLocked requires at least a read lock.
func (m *MemoryStore) balanceLocked(clientID, programID string) int64 {
	var total int64
	for _, pt := range m.transactions {
		if pt.ClientID != clientID {
			continue
		}
		if programID != "" && pt.ProgramID != programID {
			continue
		}
		total += pt.Points
	}
	return total
}
