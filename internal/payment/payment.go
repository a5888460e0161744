// Package payment manages the payment transaction attached to an order,
// sale, or freelance order.
//
// Every payable parent gets exactly one transaction. The transaction is
// a small state machine:
//
//	PENDING -> COMPLETED   (funds settled)
//	PENDING -> FAILED      (abandoned or rejected)
//
// COMPLETED and FAILED are terminal. Completing a transaction settles
// the funds for its method exactly once; a second completion attempt is
// rejected without touching any balance.
//
// Settlement by method:
//  1. TOKEN debits the payer's platform wallet.
//  2. MOBILE_MONEY probes the payer's mobile money balances in the
//     configured provider order and debits the first sufficient one.
//  3. CARD is authorized by the external processor; no wallet debit.
//  4. CASH is collected physically; no wallet debit.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/mkalala/sokosettle/internal/events"
	"github.com/mkalala/sokosettle/internal/idgen"
	"github.com/mkalala/sokosettle/internal/metrics"
	"github.com/mkalala/sokosettle/internal/syncutil"
	"github.com/mkalala/sokosettle/internal/traces"
	"github.com/mkalala/sokosettle/internal/wallet"
)

var (
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrDuplicatePayment  = errors.New("payment already exists for parent")
	ErrAlreadyCompleted  = errors.New("payment already completed")
	ErrInvalidStatus     = errors.New("invalid payment status for operation")
	ErrUnsupportedMethod = errors.New("unsupported payment method")
	ErrInvalidParentKind = errors.New("invalid parent kind")
)

// Status of a payment transaction.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// ParentKind names the settleable entity a transaction belongs to.
type ParentKind string

const (
	ParentOrder          ParentKind = "order"
	ParentSale           ParentKind = "sale"
	ParentFreelanceOrder ParentKind = "freelance_order"
)

// Payment methods accepted by the platform.
const (
	MethodToken       = "TOKEN"
	MethodMobileMoney = "MOBILE_MONEY"
	MethodCard        = "CARD"
	MethodCash        = "CASH"
)

// Transaction is the payment record for one parent entity.
type Transaction struct {
	ID         string     `json:"id"`
	ParentKind ParentKind `json:"parentKind"`
	ParentID   string     `json:"parentId"`
	PayerID    string     `json:"payerId"`
	Amount     string     `json:"amount"`
	Method     string     `json:"method"`
	// SettledVia is the wallet method the funds actually moved on.
	// For MOBILE_MONEY it records which provider balance was debited.
	SettledVia      string     `json:"settledVia,omitempty"`
	Status          Status     `json:"status"`
	TransactionDate *time.Time `json:"transactionDate,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Store persists payment transactions.
type Store interface {
	// Create fails with ErrDuplicatePayment when the parent already has
	// a transaction.
	Create(ctx context.Context, tx *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	GetByParent(ctx context.Context, kind ParentKind, parentID string) (*Transaction, error)
	// MarkCompleted transitions PENDING -> COMPLETED and stamps the
	// settlement details.
	MarkCompleted(ctx context.Context, id, settledVia string, at time.Time) error
	// MarkFailed transitions PENDING -> FAILED.
	MarkFailed(ctx context.Context, id string) error
	// UpdateAmount changes the amount of a PENDING transaction.
	UpdateAmount(ctx context.Context, id, amount string) error
}

// walletLedger is the slice of the wallet the manager needs.
type walletLedger interface {
	Debit(ctx context.Context, accountID string, kind wallet.AccountKind, method, amount, reference, description string) error
	CanSpend(ctx context.Context, accountID, method, amount string) (bool, error)
}

// Manager coordinates payment transactions and their settlement.
type Manager struct {
	store          Store
	wallet         walletLedger
	mobilePriority []string
	emitter        *events.Emitter

	// per-transaction locks serialize concurrent completion attempts
	locks syncutil.ShardedMutex
}

// New creates a payment manager. mobilePriority lists the mobile money
// providers in the order their balances are probed.
func New(store Store, ledger walletLedger, mobilePriority []string) *Manager {
	return &Manager{
		store:          store,
		wallet:         ledger,
		mobilePriority: mobilePriority,
	}
}

// WithEmitter attaches an event emitter for payment lifecycle events.
func (m *Manager) WithEmitter(e *events.Emitter) *Manager {
	m.emitter = e
	return m
}

func validParentKind(kind ParentKind) bool {
	switch kind {
	case ParentOrder, ParentSale, ParentFreelanceOrder:
		return true
	}
	return false
}

func validMethod(method string) bool {
	switch method {
	case MethodToken, MethodMobileMoney, MethodCard, MethodCash:
		return true
	}
	return false
}

// Create opens a PENDING transaction for a parent entity. A parent can
// carry at most one transaction for its lifetime.
func (m *Manager) Create(ctx context.Context, kind ParentKind, parentID, payerID, amount, method string) (*Transaction, error) {
	if !validParentKind(kind) {
		return nil, ErrInvalidParentKind
	}
	if !validMethod(method) {
		return nil, ErrUnsupportedMethod
	}

	tx := &Transaction{
		ID:         idgen.WithPrefix("pay_"),
		ParentKind: kind,
		ParentID:   parentID,
		PayerID:    payerID,
		Amount:     amount,
		Method:     method,
		Status:     StatusPending,
		CreatedAt:  time.Now(),
	}
	if err := m.store.Create(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// Get returns a transaction by ID.
func (m *Manager) Get(ctx context.Context, id string) (*Transaction, error) {
	return m.store.Get(ctx, id)
}

// GetByParent returns the transaction attached to a parent entity.
func (m *Manager) GetByParent(ctx context.Context, kind ParentKind, parentID string) (*Transaction, error) {
	return m.store.GetByParent(ctx, kind, parentID)
}

// Complete settles the funds for a PENDING transaction and transitions
// it to COMPLETED. Calling Complete on an already-COMPLETED transaction
// returns ErrAlreadyCompleted without debiting anything again; a FAILED
// transaction returns ErrInvalidStatus.
func (m *Manager) Complete(ctx context.Context, id string) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "payment.Complete", traces.PaymentID(id))
	defer span.End()

	unlock := m.locks.Lock(id)
	defer unlock()

	tx, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch tx.Status {
	case StatusCompleted:
		return tx, ErrAlreadyCompleted
	case StatusFailed:
		return tx, ErrInvalidStatus
	}

	settledVia, err := m.settle(ctx, tx)
	if err != nil {
		metrics.PaymentsTotal.WithLabelValues(tx.Method, "failed").Inc()
		return tx, err
	}

	now := time.Now()
	if err := m.store.MarkCompleted(ctx, tx.ID, settledVia, now); err != nil {
		return tx, err
	}
	tx.Status = StatusCompleted
	tx.SettledVia = settledVia
	tx.TransactionDate = &now

	metrics.PaymentsTotal.WithLabelValues(tx.Method, "completed").Inc()
	m.emitter.EmitPaymentCompleted(tx.ID, string(tx.ParentKind), tx.ParentID, tx.Amount, tx.Method)
	return tx, nil
}

// CompleteExternal transitions PENDING -> COMPLETED without settling:
// the funds already moved outside this manager (an escrow release
// transfer, or an external processor callback). settledVia records how.
func (m *Manager) CompleteExternal(ctx context.Context, id, settledVia string) (*Transaction, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	tx, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch tx.Status {
	case StatusCompleted:
		return tx, ErrAlreadyCompleted
	case StatusFailed:
		return tx, ErrInvalidStatus
	}

	now := time.Now()
	if err := m.store.MarkCompleted(ctx, tx.ID, settledVia, now); err != nil {
		return tx, err
	}
	tx.Status = StatusCompleted
	tx.SettledVia = settledVia
	tx.TransactionDate = &now

	metrics.PaymentsTotal.WithLabelValues(tx.Method, "completed").Inc()
	m.emitter.EmitPaymentCompleted(tx.ID, string(tx.ParentKind), tx.ParentID, tx.Amount, tx.Method)
	return tx, nil
}

// Fail marks a PENDING transaction FAILED. No funds move.
func (m *Manager) Fail(ctx context.Context, id string) (*Transaction, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	tx, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != StatusPending {
		return tx, ErrInvalidStatus
	}

	if err := m.store.MarkFailed(ctx, tx.ID); err != nil {
		return tx, err
	}
	tx.Status = StatusFailed

	metrics.PaymentsTotal.WithLabelValues(tx.Method, "failed").Inc()
	m.emitter.EmitPaymentFailed(tx.ID, string(tx.ParentKind), tx.ParentID)
	return tx, nil
}

// Reprice changes the amount of a PENDING transaction. The parent's
// total changed before settlement (an open sale was edited).
func (m *Manager) Reprice(ctx context.Context, id, amount string) (*Transaction, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	tx, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != StatusPending {
		return tx, ErrInvalidStatus
	}
	if err := m.store.UpdateAmount(ctx, id, amount); err != nil {
		return tx, err
	}
	tx.Amount = amount
	return tx, nil
}

// CanSettle reports whether the payer currently has the funds for the
// transaction's method, without moving anything. CARD and CASH always
// settle (funds move outside the platform).
func (m *Manager) CanSettle(ctx context.Context, tx *Transaction) (bool, error) {
	switch tx.Method {
	case MethodToken:
		return m.wallet.CanSpend(ctx, tx.PayerID, wallet.MethodToken, tx.Amount)
	case MethodMobileMoney:
		for _, provider := range m.mobilePriority {
			ok, err := m.wallet.CanSpend(ctx, tx.PayerID, provider, tx.Amount)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case MethodCard, MethodCash:
		return true, nil
	}
	return false, ErrUnsupportedMethod
}

// settle moves the funds for one transaction and returns the wallet
// method used. Methods that settle outside the platform return "".
func (m *Manager) settle(ctx context.Context, tx *Transaction) (string, error) {
	ref := tx.ID
	desc := string(tx.ParentKind) + " " + tx.ParentID

	switch tx.Method {
	case MethodToken:
		if err := m.wallet.Debit(ctx, tx.PayerID, wallet.KindClient, wallet.MethodToken, tx.Amount, ref, desc); err != nil {
			return "", err
		}
		return wallet.MethodToken, nil

	case MethodMobileMoney:
		for _, provider := range m.mobilePriority {
			err := m.wallet.Debit(ctx, tx.PayerID, wallet.KindClient, provider, tx.Amount, ref, desc)
			if err == nil {
				return provider, nil
			}
			if !errors.Is(err, wallet.ErrInsufficientBalance) {
				return "", err
			}
		}
		return "", wallet.ErrInsufficientBalance

	case MethodCard, MethodCash:
		return "", nil
	}
	return "", ErrUnsupportedMethod
}

