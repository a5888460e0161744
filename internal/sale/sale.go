// Package sale settles point-of-sale transactions rung up by a store
// worker.
//
// A sale differs from a marketplace order in three ways:
//
//  1. It is scoped to one store: the worker needs access to the store
//     and every product must belong to it.
//  2. TOKEN and CASH settle synchronously; the sale closes in the same
//     call that creates it. MOBILE_MONEY and CARD leave the sale OPEN
//     until the payment completes.
//  3. An OPEN sale can still be edited: stock is re-balanced against
//     the new line list and the total recomputed.
//
// Returns reverse the stock and, for wallet-settled sales, refund the
// ledger exactly once.
package sale

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/mkalala/sokosettle/internal/account"
	"github.com/mkalala/sokosettle/internal/catalog"
	"github.com/mkalala/sokosettle/internal/events"
	"github.com/mkalala/sokosettle/internal/idgen"
	"github.com/mkalala/sokosettle/internal/logging"
	"github.com/mkalala/sokosettle/internal/metrics"
	"github.com/mkalala/sokosettle/internal/money"
	"github.com/mkalala/sokosettle/internal/payment"
	"github.com/mkalala/sokosettle/internal/revenue"
	"github.com/mkalala/sokosettle/internal/wallet"
)

var (
	ErrSaleNotFound      = errors.New("sale not found")
	ErrEmptySale         = errors.New("sale has no items")
	ErrSaleNotOpen       = errors.New("sale is not open")
	ErrInvalidStatus     = errors.New("invalid sale status for operation")
	ErrProductNotInStore = errors.New("product does not belong to store")
	ErrInvalidDiscount   = errors.New("discount exceeds sale total")
	ErrClientRequired    = errors.New("client required for wallet payment")
	ErrAlreadyRefunded   = errors.New("sale already refunded")
)

// Status of a sale.
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusClosed   Status = "CLOSED"
	StatusRefunded Status = "REFUNDED"
)

// LineItem is one sold product with its price snapshot.
type LineItem struct {
	ProductID  string `json:"productId"`
	BusinessID string `json:"businessId"`
	Quantity   int    `json:"quantity"`
	UnitPrice  string `json:"unitPrice"`
}

// Sale is one point-of-sale transaction. ClientID is empty for an
// anonymous walk-in sale.
type Sale struct {
	ID          string     `json:"id"`
	StoreID     string     `json:"storeId"`
	WorkerID    string     `json:"workerId"`
	ClientID    string     `json:"clientId,omitempty"`
	Items       []LineItem `json:"items"`
	Discount    string     `json:"discount"`
	TotalAmount string     `json:"totalAmount"`
	Status      Status     `json:"status"`
	PaymentID   string     `json:"paymentId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Return records a refunded sale.
type Return struct {
	ID        string    `json:"id"`
	SaleID    string    `json:"saleId"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists sales and returns.
type Store interface {
	Create(ctx context.Context, s *Sale) error
	Get(ctx context.Context, id string) (*Sale, error)
	ListByStore(ctx context.Context, storeID string, limit int) ([]*Sale, error)
	// ReplaceItems swaps the line list and total of an OPEN sale.
	ReplaceItems(ctx context.Context, id string, items []LineItem, total string) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	SetPaymentID(ctx context.Context, id, paymentID string) error
	// Delete removes a sale that failed during creation before it was
	// ever observable.
	Delete(ctx context.Context, id string) error
	CreateReturn(ctx context.Context, r *Return) error
}

type catalogAPI interface {
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
	DecrementStock(ctx context.Context, id string, qty int) error
	IncrementStock(ctx context.Context, id string, qty int) error
}

type accountsAPI interface {
	WorkerHasStoreAccess(ctx context.Context, workerID, storeID string) error
	GetWorker(ctx context.Context, id string) (*account.Worker, error)
}

type paymentsAPI interface {
	Create(ctx context.Context, kind payment.ParentKind, parentID, payerID, amount, method string) (*payment.Transaction, error)
	Get(ctx context.Context, id string) (*payment.Transaction, error)
	Complete(ctx context.Context, id string) (*payment.Transaction, error)
	Fail(ctx context.Context, id string) (*payment.Transaction, error)
	Reprice(ctx context.Context, id, amount string) (*payment.Transaction, error)
}

type walletAPI interface {
	CanSpend(ctx context.Context, accountID, method, amount string) (bool, error)
	Refund(ctx context.Context, accountID string, kind wallet.AccountKind, method, amount, reference, description string) error
}

type distributorAPI interface {
	Distribute(ctx context.Context, reference string, items []revenue.Item) error
	FinishTransaction(ctx context.Context, items []revenue.Item) error
}

type loyaltyAPI interface {
	Accrue(ctx context.Context, businessID, clientID, totalAmount, reference string) (int64, error)
}

// Service settles point-of-sale transactions.
type Service struct {
	store       Store
	catalog     catalogAPI
	accounts    accountsAPI
	payments    paymentsAPI
	wallet      walletAPI
	distributor distributorAPI
	loyalty     loyaltyAPI
	emitter     *events.Emitter
}

// New creates a sale service.
func New(store Store, cat catalogAPI, accounts accountsAPI, payments paymentsAPI, ledger walletAPI, distributor distributorAPI, loy loyaltyAPI) *Service {
	return &Service{
		store:       store,
		catalog:     cat,
		accounts:    accounts,
		payments:    payments,
		wallet:      ledger,
		distributor: distributor,
		loyalty:     loy,
	}
}

// WithEmitter attaches an event emitter.
func (s *Service) WithEmitter(e *events.Emitter) *Service {
	s.emitter = e
	return s
}

// CreateRequest is the input for Create.
type CreateRequest struct {
	StoreID  string
	WorkerID string
	ClientID string // optional
	Items    []ItemRequest
	Discount string
	Method   string
}

// ItemRequest is one requested line.
type ItemRequest struct {
	ProductID string
	Quantity  int
}

// Create validates, reserves stock and settles a new sale. TOKEN and
// CASH close the sale synchronously; other methods leave it OPEN with
// a PENDING payment.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Sale, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptySale
	}
	if err := s.accounts.WorkerHasStoreAccess(ctx, req.WorkerID, req.StoreID); err != nil {
		return nil, err
	}
	if req.Method == payment.MethodToken && req.ClientID == "" {
		return nil, ErrClientRequired
	}

	items, total, err := s.validateItems(ctx, req.StoreID, req.Items)
	if err != nil {
		return nil, err
	}

	discount, ok := money.Parse(req.Discount)
	if !ok {
		return nil, wallet.ErrInvalidAmount
	}
	total = money.Sub(total, discount)
	if total.Sign() < 0 {
		return nil, ErrInvalidDiscount
	}
	totalStr := money.Format(total)

	// TOKEN settles synchronously; verify the balance before mutating
	if req.Method == payment.MethodToken {
		enough, err := s.wallet.CanSpend(ctx, req.ClientID, wallet.MethodToken, totalStr)
		if err != nil {
			return nil, err
		}
		if !enough {
			metrics.SettlementsTotal.WithLabelValues("sale", "rejected").Inc()
			return nil, wallet.ErrInsufficientBalance
		}
	}

	taken, err := s.reserveStock(ctx, items)
	if err != nil {
		metrics.SettlementsTotal.WithLabelValues("sale", "rejected").Inc()
		return nil, err
	}

	now := time.Now()
	sale := &Sale{
		ID:          idgen.WithPrefix("sale_"),
		StoreID:     req.StoreID,
		WorkerID:    req.WorkerID,
		ClientID:    req.ClientID,
		Items:       items,
		Discount:    money.Format(discount),
		TotalAmount: totalStr,
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, sale); err != nil {
		s.releaseStock(ctx, taken)
		return nil, err
	}

	tx, err := s.payments.Create(ctx, payment.ParentSale, sale.ID, req.ClientID, totalStr, req.Method)
	if err != nil {
		s.releaseStock(ctx, taken)
		_ = s.store.Delete(ctx, sale.ID)
		return nil, err
	}
	sale.PaymentID = tx.ID
	if err := s.store.SetPaymentID(ctx, sale.ID, tx.ID); err != nil {
		return nil, err
	}

	// TOKEN and CASH settle in the same call
	if req.Method == payment.MethodToken || req.Method == payment.MethodCash {
		if _, err := s.payments.Complete(ctx, tx.ID); err != nil {
			s.releaseStock(ctx, taken)
			_, _ = s.payments.Fail(ctx, tx.ID)
			_ = s.store.Delete(ctx, sale.ID)
			metrics.SettlementsTotal.WithLabelValues("sale", "rejected").Inc()
			return nil, err
		}
		if err := s.closeSale(ctx, sale); err != nil {
			return nil, err
		}
	}

	// Best-effort: the sale and payment are already persisted, and
	// distribution dedupes by reference, so a failure here must not fail
	// the settlement.
	if err := s.distributor.Distribute(ctx, sale.ID, revenueItems(items)); err != nil {
		logging.L(ctx).Warn("revenue distribution failed",
			"sale_id", sale.ID, "error", err)
	}

	metrics.SettlementsTotal.WithLabelValues("sale", "created").Inc()
	s.emitter.EmitSaleCreated(sale.ID, sale.StoreID, sale.TotalAmount, req.Method)
	return sale, nil
}

// Close completes the payment of an OPEN sale and closes it. Used when
// a MOBILE_MONEY or CARD payment settles.
func (s *Service) Close(ctx context.Context, saleID string) (*Sale, error) {
	sale, err := s.store.Get(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.Status != StatusOpen {
		return sale, ErrSaleNotOpen
	}

	if _, err := s.payments.Complete(ctx, sale.PaymentID); err != nil &&
		!errors.Is(err, payment.ErrAlreadyCompleted) {
		return sale, err
	}
	if err := s.closeSale(ctx, sale); err != nil {
		return sale, err
	}
	return sale, nil
}

func (s *Service) closeSale(ctx context.Context, sale *Sale) error {
	if err := s.store.UpdateStatus(ctx, sale.ID, StatusClosed); err != nil {
		return err
	}
	sale.Status = StatusClosed

	if err := s.distributor.FinishTransaction(ctx, revenueItems(sale.Items)); err != nil {
		return err
	}
	if worker, err := s.accounts.GetWorker(ctx, sale.WorkerID); err == nil {
		if _, err := s.loyalty.Accrue(ctx, worker.BusinessID, sale.ClientID, sale.TotalAmount, sale.ID); err != nil {
			return err
		}
	}

	metrics.SettlementsTotal.WithLabelValues("sale", "closed").Inc()
	s.emitter.EmitSaleClosed(sale.ID, sale.StoreID, sale.TotalAmount)
	return nil
}

// Update replaces the line list of an OPEN sale. Previously reserved
// stock is restored before the new list is validated and reserved, and
// the payment is repriced to the recomputed total.
func (s *Service) Update(ctx context.Context, saleID string, itemReqs []ItemRequest) (*Sale, error) {
	if len(itemReqs) == 0 {
		return nil, ErrEmptySale
	}

	sale, err := s.store.Get(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.Status != StatusOpen {
		return sale, ErrSaleNotOpen
	}

	// Give back the current reservation, then take the new one
	s.releaseStock(ctx, sale.Items)

	items, total, err := s.validateItems(ctx, sale.StoreID, itemReqs)
	if err != nil {
		s.retakeStock(ctx, sale.Items)
		return sale, err
	}

	discount, _ := money.Parse(sale.Discount)
	total = money.Sub(total, discount)
	if total.Sign() < 0 {
		s.retakeStock(ctx, sale.Items)
		return sale, ErrInvalidDiscount
	}
	totalStr := money.Format(total)

	taken, err := s.reserveStock(ctx, items)
	if err != nil {
		s.retakeStock(ctx, sale.Items)
		return sale, err
	}

	if err := s.store.ReplaceItems(ctx, sale.ID, items, totalStr); err != nil {
		s.releaseStock(ctx, taken)
		s.retakeStock(ctx, sale.Items)
		return sale, err
	}
	if _, err := s.payments.Reprice(ctx, sale.PaymentID, totalStr); err != nil {
		return sale, err
	}

	sale.Items = items
	sale.TotalAmount = totalStr
	sale.UpdatedAt = time.Now()
	return sale, nil
}

// ReturnSale reverses a closed sale: stock goes back per line and, when
// the payment settled from a wallet balance, the payer is refunded
// exactly once.
func (s *Service) ReturnSale(ctx context.Context, saleID, reason string) (*Return, error) {
	sale, err := s.store.Get(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.Status == StatusRefunded {
		return nil, ErrAlreadyRefunded
	}
	if sale.Status != StatusClosed {
		return nil, ErrInvalidStatus
	}

	tx, err := s.payments.Get(ctx, sale.PaymentID)
	if err != nil {
		return nil, err
	}

	// Wallet-settled sales refund the debited method; the reference
	// dedupe guards against a double return racing this check
	if tx.SettledVia != "" {
		err := s.wallet.Refund(ctx, tx.PayerID, wallet.KindClient, tx.SettledVia,
			tx.Amount, sale.ID, "return "+sale.ID)
		if errors.Is(err, wallet.ErrDuplicateRefund) {
			return nil, ErrAlreadyRefunded
		}
		if err != nil {
			return nil, err
		}
	}

	for _, item := range sale.Items {
		_ = s.catalog.IncrementStock(ctx, item.ProductID, item.Quantity)
	}

	if err := s.store.UpdateStatus(ctx, sale.ID, StatusRefunded); err != nil {
		return nil, err
	}

	ret := &Return{
		ID:        idgen.WithPrefix("ret_"),
		SaleID:    sale.ID,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateReturn(ctx, ret); err != nil {
		return nil, err
	}

	metrics.SettlementsTotal.WithLabelValues("sale", "returned").Inc()
	s.emitter.EmitSaleReturned(sale.ID, ret.ID, reason)
	return ret, nil
}

// Get returns a sale by ID.
func (s *Service) Get(ctx context.Context, id string) (*Sale, error) {
	return s.store.Get(ctx, id)
}

// ListByStore returns a store's sales, newest first.
func (s *Service) ListByStore(ctx context.Context, storeID string, limit int) ([]*Sale, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByStore(ctx, storeID, limit)
}

// validateItems checks scope and availability and snapshots prices.
// Nothing is mutated.
func (s *Service) validateItems(ctx context.Context, storeID string, reqs []ItemRequest) ([]LineItem, *big.Int, error) {
	items := make([]LineItem, 0, len(reqs))
	total, _ := money.Parse("0")
	for _, ir := range reqs {
		if ir.Quantity <= 0 {
			return nil, nil, catalog.ErrInvalidQuantity
		}
		product, err := s.catalog.GetProduct(ctx, ir.ProductID)
		if err != nil {
			return nil, nil, err
		}
		if product.StoreID != storeID {
			return nil, nil, ErrProductNotInStore
		}
		if product.Available < ir.Quantity {
			return nil, nil, catalog.ErrInsufficientStock
		}
		price, ok := money.Parse(product.Price)
		if !ok {
			return nil, nil, wallet.ErrInvalidAmount
		}
		total = money.Add(total, money.MulQty(price, ir.Quantity))
		items = append(items, LineItem{
			ProductID:  product.ID,
			BusinessID: product.BusinessID,
			Quantity:   ir.Quantity,
			UnitPrice:  product.Price,
		})
	}
	return items, total, nil
}

func (s *Service) reserveStock(ctx context.Context, items []LineItem) ([]LineItem, error) {
	taken := make([]LineItem, 0, len(items))
	for _, item := range items {
		if err := s.catalog.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			s.releaseStock(ctx, taken)
			return nil, err
		}
		taken = append(taken, item)
	}
	return taken, nil
}

func (s *Service) releaseStock(ctx context.Context, items []LineItem) {
	for _, item := range items {
		_ = s.catalog.IncrementStock(ctx, item.ProductID, item.Quantity)
	}
}

// retakeStock best-effort re-reserves lines released by a failed
// update.
func (s *Service) retakeStock(ctx context.Context, items []LineItem) {
	for _, item := range items {
		_ = s.catalog.DecrementStock(ctx, item.ProductID, item.Quantity)
	}
}

func revenueItems(items []LineItem) []revenue.Item {
	out := make([]revenue.Item, 0, len(items))
	for _, item := range items {
		out = append(out, revenue.Item{
			ProductID:  item.ProductID,
			BusinessID: item.BusinessID,
			Price:      item.UnitPrice,
			Quantity:   item.Quantity,
		})
	}
	return out
}
