// Package freelance manages service orders settled through escrow.
//
// Lifecycle:
//
//  1. A client orders a service. The full amount is locked as the
//     escrow amount, fixed at creation and never recomputed, and the
//     escrow is HELD. For wallet payment the client's balance is
//     verified, not debited.
//  2. Either party marks the work COMPLETED.
//  3. Release moves the funds: the client is debited the escrow amount
//     and the business credited the total minus the platform
//     commission, both legs in one atomic transfer. Release is only
//     legal from a COMPLETED order with a HELD escrow.
//  4. A non-completed order can instead be refunded: escrow REFUNDED,
//     order CANCELLED, and any settled funds returned to the client.
//
// The commission percentage stays editable until the escrow leaves
// HELD.
package freelance

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/mkalala/sokosettle/internal/events"
	"github.com/mkalala/sokosettle/internal/idgen"
	"github.com/mkalala/sokosettle/internal/metrics"
	"github.com/mkalala/sokosettle/internal/money"
	"github.com/mkalala/sokosettle/internal/payment"
	"github.com/mkalala/sokosettle/internal/syncutil"
	"github.com/mkalala/sokosettle/internal/traces"
	"github.com/mkalala/sokosettle/internal/wallet"
)

var (
	ErrServiceNotFound   = errors.New("service not found")
	ErrOrderNotFound     = errors.New("freelance order not found")
	ErrUnauthorized      = errors.New("actor not authorized for order")
	ErrNotCompleted      = errors.New("order not completed")
	ErrAlreadySettled    = errors.New("escrow already settled")
	ErrEscrowNotHeld     = errors.New("escrow not held")
	ErrInvalidCommission = errors.New("invalid commission percent")
	ErrInvalidStatus     = errors.New("invalid order status for operation")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrPaymentNotSettled = errors.New("payment not settled for release")
)

// Status of a freelance order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// EscrowStatus of the locked funds.
type EscrowStatus string

const (
	EscrowHeld     EscrowStatus = "HELD"
	EscrowReleased EscrowStatus = "RELEASED"
	EscrowRefunded EscrowStatus = "REFUNDED"
)

// Actor roles for authorization.
const (
	RoleClient   = "client"
	RoleBusiness = "business"
)

// Service is a sellable freelance service.
type Service struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"businessId"`
	Name       string    `json:"name"`
	Price      string    `json:"price"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Order is a client's order for a service. EscrowAmount is fixed at
// creation; CommissionPercent is editable until the escrow settles.
type Order struct {
	ID                string       `json:"id"`
	ClientID          string       `json:"clientId"`
	ServiceID         string       `json:"serviceId"`
	BusinessID        string       `json:"businessId"`
	Quantity          int          `json:"quantity"`
	TotalAmount       string       `json:"totalAmount"`
	EscrowAmount      string       `json:"escrowAmount"`
	CommissionPercent int64        `json:"commissionPercent"`
	Status            Status       `json:"status"`
	EscrowStatus      EscrowStatus `json:"escrowStatus"`
	EscrowReleasedAt  *time.Time   `json:"escrowReleasedAt,omitempty"`
	PaymentID         string       `json:"paymentId"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}

// Store persists services and freelance orders.
type Store interface {
	PutService(ctx context.Context, s *Service) error
	GetService(ctx context.Context, id string) (*Service, error)
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id string) (*Order, error)
	ListByClient(ctx context.Context, clientID string, limit int) ([]*Order, error)
	UpdateCommission(ctx context.Context, id string, pct int64) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	// UpdateEscrow transitions the escrow status and stamps the release
	// time when set.
	UpdateEscrow(ctx context.Context, id string, status EscrowStatus, releasedAt *time.Time) error
	SetPaymentID(ctx context.Context, id, paymentID string) error
}

type accountsAPI interface {
	ClientExists(ctx context.Context, clientID string) error
}

type paymentsAPI interface {
	Create(ctx context.Context, kind payment.ParentKind, parentID, payerID, amount, method string) (*payment.Transaction, error)
	Get(ctx context.Context, id string) (*payment.Transaction, error)
	CompleteExternal(ctx context.Context, id, settledVia string) (*payment.Transaction, error)
	Fail(ctx context.Context, id string) (*payment.Transaction, error)
}

type walletAPI interface {
	CanSpend(ctx context.Context, accountID, method, amount string) (bool, error)
	Transfer(ctx context.Context, req wallet.TransferRequest) error
	Credit(ctx context.Context, accountID string, kind wallet.AccountKind, method, amount, reference, description string) error
	Refund(ctx context.Context, accountID string, kind wallet.AccountKind, method, amount, reference, description string) error
}

// Manager coordinates escrowed freelance orders.
type Manager struct {
	store             Store
	accounts          accountsAPI
	payments          paymentsAPI
	wallet            walletAPI
	defaultCommission int64
	emitter           *events.Emitter

	// per-order locks serialize escrow transitions
	locks syncutil.ShardedMutex
}

// New creates a freelance order manager. defaultCommission is the
// platform commission percent applied when none is set explicitly.
func New(store Store, accounts accountsAPI, payments paymentsAPI, ledger walletAPI, defaultCommission int64) *Manager {
	return &Manager{
		store:             store,
		accounts:          accounts,
		payments:          payments,
		wallet:            ledger,
		defaultCommission: defaultCommission,
	}
}

// WithEmitter attaches an event emitter.
func (m *Manager) WithEmitter(e *events.Emitter) *Manager {
	m.emitter = e
	return m
}

// CreateService registers a sellable service.
func (m *Manager) CreateService(ctx context.Context, s *Service) error {
	if s.ID == "" {
		s.ID = idgen.WithPrefix("svc_")
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	return m.store.PutService(ctx, s)
}

// GetService returns a service by ID.
func (m *Manager) GetService(ctx context.Context, id string) (*Service, error) {
	return m.store.GetService(ctx, id)
}

// Create opens a freelance order with the full amount held in escrow.
// For wallet payment the client's balance is verified but not debited;
// the debit happens at release.
func (m *Manager) Create(ctx context.Context, clientID, serviceID string, qty int, method string) (*Order, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	if err := m.accounts.ClientExists(ctx, clientID); err != nil {
		return nil, err
	}
	svc, err := m.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	price, ok := money.Parse(svc.Price)
	if !ok {
		return nil, wallet.ErrInvalidAmount
	}
	total := money.Format(money.MulQty(price, qty))

	if method == payment.MethodToken {
		enough, err := m.wallet.CanSpend(ctx, clientID, wallet.MethodToken, total)
		if err != nil {
			return nil, err
		}
		if !enough {
			return nil, wallet.ErrInsufficientBalance
		}
	}

	now := time.Now()
	o := &Order{
		ID:                idgen.WithPrefix("fro_"),
		ClientID:          clientID,
		ServiceID:         serviceID,
		BusinessID:        svc.BusinessID,
		Quantity:          qty,
		TotalAmount:       total,
		EscrowAmount:      total,
		CommissionPercent: m.defaultCommission,
		Status:            StatusPending,
		EscrowStatus:      EscrowHeld,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := m.store.CreateOrder(ctx, o); err != nil {
		return nil, err
	}

	tx, err := m.payments.Create(ctx, payment.ParentFreelanceOrder, o.ID, clientID, total, method)
	if err != nil {
		_ = m.store.UpdateStatus(ctx, o.ID, StatusCancelled)
		_ = m.store.UpdateEscrow(ctx, o.ID, EscrowRefunded, nil)
		return nil, err
	}
	o.PaymentID = tx.ID
	if err := m.store.SetPaymentID(ctx, o.ID, tx.ID); err != nil {
		return nil, err
	}

	metrics.EscrowsTotal.WithLabelValues("held").Inc()
	m.emitter.EmitEscrowHeld(o.ID, clientID, total)
	return o, nil
}

// Get returns a freelance order by ID.
func (m *Manager) Get(ctx context.Context, id string) (*Order, error) {
	return m.store.GetOrder(ctx, id)
}

// ListByClient returns a client's freelance orders, newest first.
func (m *Manager) ListByClient(ctx context.Context, clientID string, limit int) ([]*Order, error) {
	if limit <= 0 {
		limit = 50
	}
	return m.store.ListByClient(ctx, clientID, limit)
}

// SetCommission changes the platform commission while the escrow is
// still HELD.
func (m *Manager) SetCommission(ctx context.Context, orderID string, pct int64) (*Order, error) {
	if pct < 0 || pct > 100 {
		return nil, ErrInvalidCommission
	}

	unlock := m.locks.Lock(orderID)
	defer unlock()

	o, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.EscrowStatus != EscrowHeld {
		return o, ErrAlreadySettled
	}

	if err := m.store.UpdateCommission(ctx, orderID, pct); err != nil {
		return o, err
	}
	o.CommissionPercent = pct
	return o, nil
}

// Complete marks the work done. Only the ordering client or the
// business owning the service may call it.
func (m *Manager) Complete(ctx context.Context, orderID, actorID, actorRole string) (*Order, error) {
	unlock := m.locks.Lock(orderID)
	defer unlock()

	o, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorize(o, actorID, actorRole); err != nil {
		return o, err
	}
	if o.Status != StatusPending {
		return o, ErrInvalidStatus
	}

	if err := m.store.UpdateStatus(ctx, orderID, StatusCompleted); err != nil {
		return o, err
	}
	o.Status = StatusCompleted
	return o, nil
}

// Release settles the escrow of a COMPLETED order: the client pays the
// escrow amount and the business receives the total minus the platform
// commission, atomically. For wallet payment the balance is
// re-validated implicitly by the transfer's conditional debit; on
// insufficient funds nothing moves and the escrow stays HELD.
func (m *Manager) Release(ctx context.Context, orderID, actorID, actorRole string) (*Order, error) {
	ctx, span := traces.StartSpan(ctx, "freelance.Release",
		traces.FreelanceOrderID(orderID))
	defer span.End()

	unlock := m.locks.Lock(orderID)
	defer unlock()

	o, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorize(o, actorID, actorRole); err != nil {
		return o, err
	}
	if o.EscrowStatus != EscrowHeld {
		return o, ErrEscrowNotHeld
	}
	if o.Status != StatusCompleted {
		return o, ErrNotCompleted
	}

	tx, err := m.payments.Get(ctx, o.PaymentID)
	if err != nil {
		return o, err
	}

	credit := netAmount(o.TotalAmount, o.CommissionPercent)

	if tx.Method == payment.MethodToken {
		err := m.wallet.Transfer(ctx, wallet.TransferRequest{
			FromAccount:  o.ClientID,
			FromKind:     wallet.KindClient,
			FromMethod:   wallet.MethodToken,
			DebitAmount:  o.EscrowAmount,
			ToAccount:    o.BusinessID,
			ToKind:       wallet.KindBusiness,
			ToMethod:     wallet.MethodToken,
			CreditAmount: credit,
			Reference:    o.ID,
			Description:  "escrow release " + o.ID,
		})
		if err != nil {
			return o, err
		}
		if _, err := m.payments.CompleteExternal(ctx, o.PaymentID, wallet.MethodToken); err != nil &&
			!errors.Is(err, payment.ErrAlreadyCompleted) {
			return o, err
		}
	} else {
		// External rails must have settled already; the business credit
		// is funded by that debit, never conjured on release.
		if tx.Status != payment.StatusCompleted {
			return o, ErrPaymentNotSettled
		}
		if err := m.wallet.Credit(ctx, o.BusinessID, wallet.KindBusiness, wallet.MethodToken,
			credit, o.ID, "escrow release "+o.ID); err != nil {
			return o, err
		}
	}

	now := time.Now()
	if err := m.store.UpdateEscrow(ctx, orderID, EscrowReleased, &now); err != nil {
		return o, err
	}
	o.EscrowStatus = EscrowReleased
	o.EscrowReleasedAt = &now

	metrics.EscrowsTotal.WithLabelValues("released").Inc()
	m.emitter.EmitEscrowReleased(o.ID, o.BusinessID, credit)
	return o, nil
}

// Refund cancels a non-completed order and returns any settled funds to
// the client. The escrow moves HELD -> REFUNDED.
func (m *Manager) Refund(ctx context.Context, orderID, actorID, actorRole string) (*Order, error) {
	unlock := m.locks.Lock(orderID)
	defer unlock()

	o, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorize(o, actorID, actorRole); err != nil {
		return o, err
	}
	if o.EscrowStatus != EscrowHeld {
		return o, ErrEscrowNotHeld
	}
	if o.Status == StatusCompleted {
		return o, ErrInvalidStatus
	}

	tx, err := m.payments.Get(ctx, o.PaymentID)
	if err != nil {
		return o, err
	}

	// Only settled funds come back; a held-but-undebited wallet order
	// has nothing to return
	if tx.Status == payment.StatusCompleted && tx.SettledVia != "" {
		err := m.wallet.Refund(ctx, o.ClientID, wallet.KindClient, tx.SettledVia,
			tx.Amount, o.ID, "escrow refund "+o.ID)
		if err != nil && !errors.Is(err, wallet.ErrDuplicateRefund) {
			return o, err
		}
	}
	if tx.Status == payment.StatusPending {
		if _, err := m.payments.Fail(ctx, o.PaymentID); err != nil {
			return o, err
		}
	}

	if err := m.store.UpdateEscrow(ctx, orderID, EscrowRefunded, nil); err != nil {
		return o, err
	}
	if err := m.store.UpdateStatus(ctx, orderID, StatusCancelled); err != nil {
		return o, err
	}
	o.EscrowStatus = EscrowRefunded
	o.Status = StatusCancelled

	metrics.EscrowsTotal.WithLabelValues("refunded").Inc()
	m.emitter.EmitEscrowRefunded(o.ID, o.ClientID, o.EscrowAmount)
	return o, nil
}


func authorize(o *Order, actorID, actorRole string) error {
	switch actorRole {
	case RoleClient:
		if actorID == o.ClientID {
			return nil
		}
	case RoleBusiness:
		if actorID == o.BusinessID {
			return nil
		}
	}
	return ErrUnauthorized
}

// netAmount is total x (100 - pct) / 100, truncating.
func netAmount(total string, pct int64) string {
	amount, ok := money.Parse(total)
	if !ok {
		return "0.00"
	}
	net := new(big.Int).Mul(amount, big.NewInt(100-pct))
	net.Quo(net, big.NewInt(100))
	return money.Format(net)
}
