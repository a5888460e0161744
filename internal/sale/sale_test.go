package sale

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkalala/sokosettle/internal/account"
	"github.com/mkalala/sokosettle/internal/catalog"
	"github.com/mkalala/sokosettle/internal/loyalty"
	"github.com/mkalala/sokosettle/internal/payment"
	"github.com/mkalala/sokosettle/internal/revenue"
	"github.com/mkalala/sokosettle/internal/wallet"
)

type fixture struct {
	sales    *Service
	catalog  *catalog.Catalog
	accounts *account.Service
	ledger   *wallet.Ledger
	payments *payment.Manager
	loyalty  *loyalty.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	cat := catalog.New(catalog.NewMemoryStore())
	accounts := account.NewService(account.NewMemoryStore())
	ledger := wallet.New(wallet.NewMemoryStore())
	payments := payment.New(payment.NewMemoryStore(), ledger,
		[]string{"AIRTEL_MONEY", "MTN_MONEY", "ORANGE_MONEY", "MPESA"})
	distributor := revenue.New(revenue.NewMemoryStore(), cat, ledger, accounts, 20, 2000)
	loy := loyalty.New(loyalty.NewMemoryStore())

	f := &fixture{
		sales:    New(NewMemoryStore(), cat, accounts, payments, ledger, distributor, loy),
		catalog:  cat,
		accounts: accounts,
		ledger:   ledger,
		payments: payments,
		loyalty:  loy,
	}

	require.NoError(t, accounts.PutBusiness(ctx, &account.Business{ID: "biz_1", Name: "Soko Mart"}))
	require.NoError(t, accounts.PutWorker(ctx, &account.Worker{
		ID: "wk_1", BusinessID: "biz_1", StoreID: "st_1", Name: "Jules",
	}))
	require.NoError(t, accounts.PutClient(ctx, &account.Client{ID: "cl_1", Name: "Amina"}))
	require.NoError(t, cat.PutProduct(ctx, &catalog.Product{
		ID: "prd_a", StoreID: "st_1", BusinessID: "biz_1", Name: "Savon", Price: "10.00", Available: 20,
	}))
	require.NoError(t, cat.PutProduct(ctx, &catalog.Product{
		ID: "prd_b", StoreID: "st_1", BusinessID: "biz_1", Name: "Sucre", Price: "5.00", Available: 8,
	}))
	require.NoError(t, cat.PutProduct(ctx, &catalog.Product{
		ID: "prd_other", StoreID: "st_2", BusinessID: "biz_2", Name: "Thé", Price: "4.00", Available: 10,
	}))
	return f
}

func TestCreateCashClosesImmediately(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, err := f.sales.Create(ctx, CreateRequest{
		StoreID:  "st_1",
		WorkerID: "wk_1",
		Items:    []ItemRequest{{ProductID: "prd_a", Quantity: 2}},
		Discount: "0.00",
		Method:   payment.MethodCash,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusClosed, s.Status)
	assert.Equal(t, "20.00", s.TotalAmount)

	tx, err := f.payments.Get(ctx, s.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, tx.Status)

	a, _ := f.catalog.GetProduct(ctx, "prd_a")
	assert.Equal(t, 18, a.Available)
}

func TestCreateTokenSettlesSynchronously(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.ledger.Credit(ctx, "cl_1", wallet.KindClient, wallet.MethodToken, "100.00", "", ""))

	s, err := f.sales.Create(ctx, CreateRequest{
		StoreID:  "st_1",
		WorkerID: "wk_1",
		ClientID: "cl_1",
		Items:    []ItemRequest{{ProductID: "prd_a", Quantity: 3}},
		Discount: "5.00",
		Method:   payment.MethodToken,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusClosed, s.Status)
	assert.Equal(t, "25.00", s.TotalAmount) // 30.00 - 5.00 discount

	bal, _ := f.ledger.Balance(ctx, "cl_1", wallet.MethodToken)
	assert.Equal(t, "75.00", bal)
}

func TestCreateTokenInsufficientNoMutation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.ledger.Credit(ctx, "cl_1", wallet.KindClient, wallet.MethodToken, "50.00", "", ""))

	_, err := f.sales.Create(ctx, CreateRequest{
		StoreID:  "st_1",
		WorkerID: "wk_1",
		ClientID: "cl_1",
		Items:    []ItemRequest{{ProductID: "prd_a", Quantity: 6}}, // 60.00
		Discount: "0.00",
		Method:   payment.MethodToken,
	})
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)

	a, _ := f.catalog.GetProduct(ctx, "prd_a")
	assert.Equal(t, 20, a.Available)
	bal, _ := f.ledger.Balance(ctx, "cl_1", wallet.MethodToken)
	assert.Equal(t, "50.00", bal)
}

func TestCreateTokenRequiresClient(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.sales.Create(ctx, CreateRequest{
		StoreID:  "st_1",
		WorkerID: "wk_1",
		Items:    []ItemRequest{{ProductID: "prd_a", Quantity: 1}},
		Discount: "0.00",
		Method:   payment.MethodToken,
	})
	assert.ErrorIs(t, err, ErrClientRequired)
}

func TestCreateStoreScopeEnforced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Worker from another store
	_, err := f.sales.Create(ctx, CreateRequest{
		StoreID:  "st_2",
		WorkerID: "wk_1",
		Items:    []ItemRequest{{ProductID: "prd_other", Quantity: 1}},
		Discount: "0.00",
		Method:   payment.MethodCash,
	})
	assert.ErrorIs(t, err, account.ErrStoreAccessDenied)

	// Product from another store
	_, err = f.sales.Create(ctx, CreateRequest{
		StoreID:  "st_1",
		WorkerID: "wk_1",
		Items:    []ItemRequest{{ProductID: "prd_other", Quantity: 1}},
		Discount: "0.00",
		Method:   payment.MethodCash,
	})
	assert.ErrorIs(t, err, ErrProductNotInStore)
}

func TestCreatePersistsPaymentLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, err := f.sales.Create(ctx, CreateRequest{
		StoreID:  "st_1",
		WorkerID: "wk_1",
		Items:    []ItemRequest{{ProductID: "prd_a", Quantity: 1}},
		Discount: "0.00",
		Method:   payment.MethodMobileMoney,
	})
	require.NoError(t, err)
	require.NotEmpty(t, s.PaymentID)

	// The link must survive a store round trip, not just the returned copy
	got, err := f.sales.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.PaymentID, got.PaymentID)
}

func TestMobileMoneySaleStaysOpenUntilClose(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.ledger.Credit(ctx, "cl_1", wallet.KindClient, "MTN_MONEY", "100.00", "", ""))

	s, err := f.sales.Create(ctx, CreateRequest{
		StoreID:  "st_1",
		WorkerID: "wk_1",
		ClientID: "cl_1",
		Items:    []ItemRequest{{ProductID: "prd_a", Quantity: 2}},
		Discount: "0.00",
		Method:   payment.MethodMobileMoney,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, s.Status)

	closed, err := f.sales.Close(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, closed.Status)

	bal, _ := f.ledger.Balance(ctx, "cl_1", "MTN_MONEY")
	assert.Equal(t, "80.00", bal)
}

func TestUpdateOpenSaleRebalancesStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, err := f.sales.Create(ctx, CreateRequest{
		StoreID:  "st_1",
		WorkerID: "wk_1",
		ClientID: "cl_1",
		Items:    []ItemRequest{{ProductID: "prd_a", Quantity: 4}},
		Discount: "0.00",
		Method:   payment.MethodMobileMoney,
	})
	require.NoError(t, err)

	updated, err := f.sales.Update(ctx, s.ID, []ItemRequest{
		{ProductID: "prd_a", Quantity: 1},
		{ProductID: "prd_b", Quantity: 2},
	})
	require.NoError(t, err)

	assert.Equal(t, "20.00", updated.TotalAmount) // 10.00 + 2x5.00
	require.Len(t, updated.Items, 2)

	a, _ := f.catalog.GetProduct(ctx, "prd_a")
	b, _ := f.catalog.GetProduct(ctx, "prd_b")
	assert.Equal(t, 19, a.Available)
	assert.Equal(t, 6, b.Available)

	// Payment repriced to the new total
	tx, err := f.payments.Get(ctx, s.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, "20.00", tx.Amount)
}

func TestUpdateRejectedWhenNotOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, err := f.sales.Create(ctx, CreateRequest{
		StoreID:  "st_1",
		WorkerID: "wk_1",
		Items:    []ItemRequest{{ProductID: "prd_a", Quantity: 1}},
		Discount: "0.00",
		Method:   payment.MethodCash,
	})
	require.NoError(t, err)

	_, err = f.sales.Update(ctx, s.ID, []ItemRequest{{ProductID: "prd_b", Quantity: 1}})
	assert.ErrorIs(t, err, ErrSaleNotOpen)
}

func TestUpdateFailureRestoresOriginalReservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, err := f.sales.Create(ctx, CreateRequest{
		StoreID:  "st_1",
		WorkerID: "wk_1",
		Items:    []ItemRequest{{ProductID: "prd_a", Quantity: 4}},
		Discount: "0.00",
		Method:   payment.MethodCard,
	})
	require.NoError(t, err)

	// New list asks for more than available
	_, err = f.sales.Update(ctx, s.ID, []ItemRequest{{ProductID: "prd_b", Quantity: 9}})
	assert.ErrorIs(t, err, catalog.ErrInsufficientStock)

	// Original reservation still in place
	a, _ := f.catalog.GetProduct(ctx, "prd_a")
	b, _ := f.catalog.GetProduct(ctx, "prd_b")
	assert.Equal(t, 16, a.Available)
	assert.Equal(t, 8, b.Available)
}

func TestReturnTokenSaleRefundsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.ledger.Credit(ctx, "cl_1", wallet.KindClient, wallet.MethodToken, "100.00", "", ""))

	s, err := f.sales.Create(ctx, CreateRequest{
		StoreID:  "st_1",
		WorkerID: "wk_1",
		ClientID: "cl_1",
		Items:    []ItemRequest{{ProductID: "prd_a", Quantity: 3}},
		Discount: "0.00",
		Method:   payment.MethodToken,
	})
	require.NoError(t, err)

	ret, err := f.sales.ReturnSale(ctx, s.ID, "damaged")
	require.NoError(t, err)
	assert.Equal(t, s.ID, ret.SaleID)

	// Stock back, money back
	a, _ := f.catalog.GetProduct(ctx, "prd_a")
	assert.Equal(t, 20, a.Available)
	bal, _ := f.ledger.Balance(ctx, "cl_1", wallet.MethodToken)
	assert.Equal(t, "100.00", bal)

	// Second return rejected
	_, err = f.sales.ReturnSale(ctx, s.ID, "again")
	assert.ErrorIs(t, err, ErrAlreadyRefunded)
	bal, _ = f.ledger.Balance(ctx, "cl_1", wallet.MethodToken)
	assert.Equal(t, "100.00", bal)
}

func TestReturnCashSaleNoWalletMovement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, err := f.sales.Create(ctx, CreateRequest{
		StoreID:  "st_1",
		WorkerID: "wk_1",
		Items:    []ItemRequest{{ProductID: "prd_a", Quantity: 2}},
		Discount: "0.00",
		Method:   payment.MethodCash,
	})
	require.NoError(t, err)

	_, err = f.sales.ReturnSale(ctx, s.ID, "changed mind")
	require.NoError(t, err)

	a, _ := f.catalog.GetProduct(ctx, "prd_a")
	assert.Equal(t, 20, a.Available)
}

func TestLoyaltyAccruesOnClose(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	program := &loyalty.Program{BusinessID: "biz_1", Name: "Soko Points", PointsPerPurchase: 2}
	require.NoError(t, f.loyalty.CreateProgram(ctx, program))
	require.NoError(t, f.ledger.Credit(ctx, "cl_1", wallet.KindClient, wallet.MethodToken, "100.00", "", ""))

	_, err := f.sales.Create(ctx, CreateRequest{
		StoreID:  "st_1",
		WorkerID: "wk_1",
		ClientID: "cl_1",
		Items:    []ItemRequest{{ProductID: "prd_a", Quantity: 3}},
		Discount: "0.00",
		Method:   payment.MethodToken,
	})
	require.NoError(t, err)

	points, err := f.loyalty.Balance(ctx, "cl_1", program.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), points) // 30.00 x 2

	// Anonymous sale accrues nothing
	_, err = f.sales.Create(ctx, CreateRequest{
		StoreID:  "st_1",
		WorkerID: "wk_1",
		Items:    []ItemRequest{{ProductID: "prd_a", Quantity: 1}},
		Discount: "0.00",
		Method:   payment.MethodCash,
	})
	require.NoError(t, err)

	points, _ = f.loyalty.Balance(ctx, "cl_1", program.ID)
	assert.Equal(t, int64(60), points)
}
