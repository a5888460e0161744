// Package order settles marketplace orders.
//
// Flow for a new order:
//
//  1. Validate everything first: client exists, every product exists,
//     stock covers every line. Any failure aborts before any mutation.
//  2. Snapshot unit prices into the line items and compute the total
//     server-side; client-supplied totals are ignored.
//  3. For TOKEN payment, verify the client's balance covers the total.
//  4. Decrement stock per line. A failure mid-way re-increments the
//     lines already taken, so no partial reservation is observable.
//  5. Persist the order, open a PENDING payment, run revenue
//     distribution per line, emit order.created.
//
// The order completes when its payment completes; loyalty accrues per
// selling business at that point.
package order

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/mkalala/sokosettle/internal/catalog"
	"github.com/mkalala/sokosettle/internal/events"
	"github.com/mkalala/sokosettle/internal/idgen"
	"github.com/mkalala/sokosettle/internal/logging"
	"github.com/mkalala/sokosettle/internal/metrics"
	"github.com/mkalala/sokosettle/internal/money"
	"github.com/mkalala/sokosettle/internal/payment"
	"github.com/mkalala/sokosettle/internal/revenue"
	"github.com/mkalala/sokosettle/internal/syncutil"
	"github.com/mkalala/sokosettle/internal/traces"
	"github.com/mkalala/sokosettle/internal/wallet"
)

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrEmptyOrder          = errors.New("order has no items")
	ErrInvalidStatus       = errors.New("invalid order status for operation")
	ErrInsufficientBalance = errors.New("insufficient balance for order total")
)

// Status of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// LineItem is one ordered product. UnitPrice and BusinessID are
// snapshots taken at validation time; later catalog changes never
// affect a settled order.
type LineItem struct {
	ProductID  string `json:"productId"`
	BusinessID string `json:"businessId"`
	Quantity   int    `json:"quantity"`
	UnitPrice  string `json:"unitPrice"`
}

// Order is a client's marketplace order.
type Order struct {
	ID              string     `json:"id"`
	ClientID        string     `json:"clientId"`
	Items           []LineItem `json:"items"`
	DeliveryFee     string     `json:"deliveryFee"`
	DeliveryAddress string     `json:"deliveryAddress,omitempty"`
	TotalAmount     string     `json:"totalAmount"`
	Status          Status     `json:"status"`
	PaymentID       string     `json:"paymentId"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Store persists orders.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	ListByClient(ctx context.Context, clientID string, limit int) ([]*Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	SetPaymentID(ctx context.Context, id, paymentID string) error
}

// Collaborator slices, defined where they are consumed.

type catalogAPI interface {
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
	DecrementStock(ctx context.Context, id string, qty int) error
	IncrementStock(ctx context.Context, id string, qty int) error
}

type accountsAPI interface {
	ClientExists(ctx context.Context, clientID string) error
}

type paymentsAPI interface {
	Create(ctx context.Context, kind payment.ParentKind, parentID, payerID, amount, method string) (*payment.Transaction, error)
	Complete(ctx context.Context, id string) (*payment.Transaction, error)
	Fail(ctx context.Context, id string) (*payment.Transaction, error)
}

type walletAPI interface {
	CanSpend(ctx context.Context, accountID, method, amount string) (bool, error)
}

type distributorAPI interface {
	Distribute(ctx context.Context, reference string, items []revenue.Item) error
	FinishTransaction(ctx context.Context, items []revenue.Item) error
}

type loyaltyAPI interface {
	Accrue(ctx context.Context, businessID, clientID, totalAmount, reference string) (int64, error)
}

// Service settles marketplace orders.
type Service struct {
	store       Store
	catalog     catalogAPI
	accounts    accountsAPI
	payments    paymentsAPI
	wallet      walletAPI
	distributor distributorAPI
	loyalty     loyaltyAPI
	emitter     *events.Emitter

	// per-order locks serialize status transitions
	locks *syncutil.ContextShardedMutex
}

// New creates an order service.
func New(store Store, cat catalogAPI, accounts accountsAPI, payments paymentsAPI, ledger walletAPI, distributor distributorAPI, loy loyaltyAPI) *Service {
	return &Service{
		store:       store,
		catalog:     cat,
		accounts:    accounts,
		payments:    payments,
		wallet:      ledger,
		distributor: distributor,
		loyalty:     loy,
		locks:       syncutil.NewContextShardedMutex(),
	}
}

// WithEmitter attaches an event emitter.
func (s *Service) WithEmitter(e *events.Emitter) *Service {
	s.emitter = e
	return s
}

// CreateRequest is the input for Create. Item prices are not accepted
// from the caller; the catalog price at validation time is used.
type CreateRequest struct {
	ClientID        string
	Items           []ItemRequest
	DeliveryFee     string
	DeliveryAddress string
	Method          string
}

// ItemRequest is one requested line.
type ItemRequest struct {
	ProductID string
	Quantity  int
}

// Create validates and settles a new order.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	ctx, span := traces.StartSpan(ctx, "order.Create",
		traces.ClientID(req.ClientID), traces.Method(req.Method))
	defer span.End()

	if err := s.accounts.ClientExists(ctx, req.ClientID); err != nil {
		return nil, err
	}

	// Validate every line and snapshot prices before touching anything
	items := make([]LineItem, 0, len(req.Items))
	total, _ := money.Parse("0")
	for _, ir := range req.Items {
		if ir.Quantity <= 0 {
			return nil, catalog.ErrInvalidQuantity
		}
		product, err := s.catalog.GetProduct(ctx, ir.ProductID)
		if err != nil {
			return nil, err
		}
		if product.Available < ir.Quantity {
			return nil, catalog.ErrInsufficientStock
		}
		price, ok := money.Parse(product.Price)
		if !ok {
			return nil, wallet.ErrInvalidAmount
		}
		total = money.Add(total, money.MulQty(price, ir.Quantity))
		items = append(items, LineItem{
			ProductID:  product.ID,
			BusinessID: product.BusinessID,
			Quantity:   ir.Quantity,
			UnitPrice:  product.Price,
		})
	}

	fee, ok := money.Parse(req.DeliveryFee)
	if !ok {
		return nil, wallet.ErrInvalidAmount
	}
	total = money.Add(total, fee)
	totalStr := money.Format(total)

	if req.Method == payment.MethodToken {
		enough, err := s.wallet.CanSpend(ctx, req.ClientID, wallet.MethodToken, totalStr)
		if err != nil {
			return nil, err
		}
		if !enough {
			return nil, ErrInsufficientBalance
		}
	}

	// Reserve stock; compensate already-taken lines on failure
	taken := make([]LineItem, 0, len(items))
	for _, item := range items {
		if err := s.catalog.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			s.releaseStock(ctx, taken)
			metrics.SettlementsTotal.WithLabelValues("order", "rejected").Inc()
			return nil, err
		}
		taken = append(taken, item)
	}

	now := time.Now()
	o := &Order{
		ID:              idgen.WithPrefix("ord_"),
		ClientID:        req.ClientID,
		Items:           items,
		DeliveryFee:     money.Format(fee),
		DeliveryAddress: req.DeliveryAddress,
		TotalAmount:     totalStr,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Create(ctx, o); err != nil {
		s.releaseStock(ctx, taken)
		return nil, err
	}

	tx, err := s.payments.Create(ctx, payment.ParentOrder, o.ID, req.ClientID, totalStr, req.Method)
	if err != nil {
		s.releaseStock(ctx, taken)
		_ = s.store.UpdateStatus(ctx, o.ID, StatusCancelled)
		return nil, err
	}
	o.PaymentID = tx.ID
	if err := s.store.SetPaymentID(ctx, o.ID, tx.ID); err != nil {
		return nil, err
	}

	// Best-effort: the order and payment are already persisted, and
	// distribution dedupes by reference, so a failure here must not fail
	// the settlement.
	if err := s.distributor.Distribute(ctx, o.ID, revenueItems(items)); err != nil {
		logging.L(ctx).Warn("revenue distribution failed",
			"order_id", o.ID, "error", err)
	}

	metrics.SettlementsTotal.WithLabelValues("order", "created").Inc()
	s.emitter.EmitOrderCreated(o.ID, o.ClientID, o.TotalAmount, req.Method)
	return o, nil
}

// Complete settles the order's payment and transitions it to COMPLETED.
// Loyalty accrues per selling business on its share of the items.
func (s *Service) Complete(ctx context.Context, orderID string) (*Order, error) {
	unlock, err := s.locks.LockContext(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPending {
		return o, ErrInvalidStatus
	}

	if _, err := s.payments.Complete(ctx, o.PaymentID); err != nil &&
		!errors.Is(err, payment.ErrAlreadyCompleted) {
		return o, err
	}

	if err := s.store.UpdateStatus(ctx, o.ID, StatusCompleted); err != nil {
		return o, err
	}
	o.Status = StatusCompleted

	if err := s.distributor.FinishTransaction(ctx, revenueItems(o.Items)); err != nil {
		return o, err
	}
	for businessID, amount := range perBusinessTotals(o.Items) {
		if _, err := s.loyalty.Accrue(ctx, businessID, o.ClientID, amount, o.ID); err != nil {
			return o, err
		}
	}

	metrics.SettlementsTotal.WithLabelValues("order", "completed").Inc()
	s.emitter.EmitOrderCompleted(o.ID, o.ClientID)
	return o, nil
}

// Cancel aborts a PENDING order: the payment fails and the reserved
// stock returns to the catalog.
func (s *Service) Cancel(ctx context.Context, orderID string) (*Order, error) {
	unlock, err := s.locks.LockContext(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPending {
		return o, ErrInvalidStatus
	}

	if o.PaymentID != "" {
		if _, err := s.payments.Fail(ctx, o.PaymentID); err != nil &&
			!errors.Is(err, payment.ErrInvalidStatus) {
			return o, err
		}
	}
	s.releaseStock(ctx, o.Items)

	if err := s.store.UpdateStatus(ctx, o.ID, StatusCancelled); err != nil {
		return o, err
	}
	o.Status = StatusCancelled

	metrics.SettlementsTotal.WithLabelValues("order", "cancelled").Inc()
	return o, nil
}

// Get returns an order by ID.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.store.Get(ctx, id)
}

// ListByClient returns a client's orders, newest first.
func (s *Service) ListByClient(ctx context.Context, clientID string, limit int) ([]*Order, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByClient(ctx, clientID, limit)
}

// releaseStock best-effort re-increments reserved lines.
func (s *Service) releaseStock(ctx context.Context, items []LineItem) {
	for _, item := range items {
		_ = s.catalog.IncrementStock(ctx, item.ProductID, item.Quantity)
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

func perBusinessTotals(items []LineItem) map[string]string {
	sums := make(map[string]*big.Int)
	for _, item := range items {
		price, ok := money.Parse(item.UnitPrice)
		if !ok {
			continue
		}
		line := money.MulQty(price, item.Quantity)
		if sum, exists := sums[item.BusinessID]; exists {
			sum.Add(sum, line)
		} else {
			sums[item.BusinessID] = line
		}
	}
	totals := make(map[string]string, len(sums))
	for businessID, sum := range sums {
		totals[businessID] = money.Format(sum)
	}
	return totals
}
