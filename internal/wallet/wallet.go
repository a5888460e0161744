// Package wallet tracks client and business balances on the platform.
//
// The ledger is append-only: every movement is a signed entry (credits
// positive, debits negative) per (account, payment method), and the
// balance is derived from the entries. A materialized running balance
// per (account, method) is updated in the same transaction or under the
// same lock as the entry append, so a balance check and the debit it
// guards can never interleave with a concurrent debit.
package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/mkalala/sokosettle/internal/money"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrDuplicateRefund     = errors.New("refund already processed")
)

// AccountKind distinguishes client and business accounts.
type AccountKind string

const (
	KindClient   AccountKind = "client"
	KindBusiness AccountKind = "business"
)

// Payment methods backed by the wallet ledger.
const (
	MethodToken  = "TOKEN"
	MethodAirtel = "AIRTEL_MONEY"
	MethodMTN    = "MTN_MONEY"
	MethodOrange = "ORANGE_MONEY"
	MethodMpesa  = "MPESA"
)

// Entry is one immutable signed ledger movement.
type Entry struct {
	ID          string      `json:"id"`
	AccountID   string      `json:"accountId"`
	AccountKind AccountKind `json:"accountKind"`
	Method      string      `json:"method"`
	Amount      string      `json:"amount"` // signed: "-60.00" is a debit
	Reference   string      `json:"reference,omitempty"`
	Description string      `json:"description,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// TransferRequest moves value between two accounts in one atomic unit.
// Debit and credit amounts may differ; the platform retains the gap
// (escrow commission).
type TransferRequest struct {
	FromAccount  string
	FromKind     AccountKind
	FromMethod   string
	DebitAmount  string
	ToAccount    string
	ToKind       AccountKind
	ToMethod     string
	CreditAmount string
	Reference    string
	Description  string
}

// Store persists ledger entries and running balances.
type Store interface {
	// Balance returns the materialized balance for (account, method);
	// method "" sums every method for the account.
	Balance(ctx context.Context, accountID, method string) (string, error)
	Credit(ctx context.Context, accountID string, kind AccountKind, method, amount, reference, description string) error
	// Debit checks and debits in one atomic step, failing with
	// ErrInsufficientBalance without any state change.
	Debit(ctx context.Context, accountID string, kind AccountKind, method, amount, reference, description string) error
	// Refund credits back a previously debited amount, at most once per
	// (account, reference).
	Refund(ctx context.Context, accountID string, kind AccountKind, method, amount, reference, description string) error
	// Transfer executes both legs atomically: a crash between them must
	// not be observable.
	Transfer(ctx context.Context, req TransferRequest) error
	History(ctx context.Context, accountID string, limit int) ([]*Entry, error)
}

// Ledger manages account balances.
type Ledger struct {
	store Store
}

// New creates a new wallet ledger.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Balance returns the balance for an account, optionally scoped to one
// payment method.
func (l *Ledger) Balance(ctx context.Context, accountID, method string) (string, error) {
	return l.store.Balance(ctx, accountID, method)
}

// CanSpend checks if an account has at least amount available under the
// given method. The answer is advisory: the authoritative check happens
// inside Debit.
func (l *Ledger) CanSpend(ctx context.Context, accountID, method, amount string) (bool, error) {
	amountBig, ok := money.Parse(amount)
	if !ok {
		return false, ErrInvalidAmount
	}

	bal, err := l.store.Balance(ctx, accountID, method)
	if err != nil {
		return false, err
	}

	balBig, _ := money.ParseSigned(bal)
	return balBig.Cmp(amountBig) >= 0, nil
}

// Credit adds funds to an account.
func (l *Ledger) Credit(ctx context.Context, accountID string, kind AccountKind, method, amount, reference, description string) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	return l.store.Credit(ctx, accountID, kind, method, amount, reference, description)
}

// Debit removes funds from an account, failing with
// ErrInsufficientBalance and no state change when the balance is short.
func (l *Ledger) Debit(ctx context.Context, accountID string, kind AccountKind, method, amount, reference, description string) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	return l.store.Debit(ctx, accountID, kind, method, amount, reference, description)
}

// Refund credits back a debited amount, at most once per reference.
func (l *Ledger) Refund(ctx context.Context, accountID string, kind AccountKind, method, amount, reference, description string) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	return l.store.Refund(ctx, accountID, kind, method, amount, reference, description)
}

// Transfer executes a two-leg movement atomically.
func (l *Ledger) Transfer(ctx context.Context, req TransferRequest) error {
	if err := validateAmount(req.DebitAmount); err != nil {
		return err
	}
	credit, ok := money.Parse(req.CreditAmount)
	if !ok || credit.Sign() < 0 {
		return ErrInvalidAmount
	}
	return l.store.Transfer(ctx, req)
}

// History returns ledger entries for an account, newest first.
func (l *Ledger) History(ctx context.Context, accountID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.store.History(ctx, accountID, limit)
}

func validateAmount(amount string) error {
	amountBig, ok := money.Parse(amount)
	if !ok || amountBig.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
