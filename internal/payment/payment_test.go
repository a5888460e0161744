package payment

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkalala/sokosettle/internal/wallet"
)

var testPriority = []string{"AIRTEL_MONEY", "MTN_MONEY", "ORANGE_MONEY", "MPESA"}

func newTestManager() (*Manager, *wallet.Ledger) {
	ledger := wallet.New(wallet.NewMemoryStore())
	return New(NewMemoryStore(), ledger, testPriority), ledger
}

func TestCreateDuplicateParent(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager()

	_, err := mgr.Create(ctx, ParentOrder, "ord_1", "cl_1", "28.00", MethodToken)
	require.NoError(t, err)

	_, err = mgr.Create(ctx, ParentOrder, "ord_1", "cl_1", "28.00", MethodCash)
	assert.ErrorIs(t, err, ErrDuplicatePayment)

	// Same ID under a different parent kind is fine
	_, err = mgr.Create(ctx, ParentSale, "ord_1", "cl_1", "28.00", MethodCash)
	assert.NoError(t, err)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager()

	_, err := mgr.Create(ctx, ParentKind("invoice"), "inv_1", "cl_1", "10.00", MethodToken)
	assert.ErrorIs(t, err, ErrInvalidParentKind)

	_, err = mgr.Create(ctx, ParentOrder, "ord_1", "cl_1", "10.00", "CHEQUE")
	assert.ErrorIs(t, err, ErrUnsupportedMethod)
}

func TestCompleteTokenDebitsOnce(t *testing.T) {
	ctx := context.Background()
	mgr, ledger := newTestManager()

	require.NoError(t, ledger.Credit(ctx, "cl_1", wallet.KindClient, wallet.MethodToken, "100.00", "", ""))

	tx, err := mgr.Create(ctx, ParentOrder, "ord_1", "cl_1", "28.00", MethodToken)
	require.NoError(t, err)

	completed, err := mgr.Complete(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)
	assert.Equal(t, wallet.MethodToken, completed.SettledVia)
	require.NotNil(t, completed.TransactionDate)

	// Second completion is rejected and must not debit again
	_, err = mgr.Complete(ctx, tx.ID)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)

	bal, err := ledger.Balance(ctx, "cl_1", wallet.MethodToken)
	require.NoError(t, err)
	assert.Equal(t, "72.00", bal)
}

func TestCompleteInsufficientLeavesPending(t *testing.T) {
	ctx := context.Background()
	mgr, ledger := newTestManager()

	require.NoError(t, ledger.Credit(ctx, "cl_1", wallet.KindClient, wallet.MethodToken, "50.00", "", ""))

	tx, err := mgr.Create(ctx, ParentOrder, "ord_1", "cl_1", "60.00", MethodToken)
	require.NoError(t, err)

	_, err = mgr.Complete(ctx, tx.ID)
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)

	got, err := mgr.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	bal, _ := ledger.Balance(ctx, "cl_1", wallet.MethodToken)
	assert.Equal(t, "50.00", bal)
}

func TestCompleteMobileMoneyProbesPriorityOrder(t *testing.T) {
	ctx := context.Background()
	mgr, ledger := newTestManager()

	// Airtel is short, MTN covers it
	require.NoError(t, ledger.Credit(ctx, "cl_1", wallet.KindClient, "AIRTEL_MONEY", "5.00", "", ""))
	require.NoError(t, ledger.Credit(ctx, "cl_1", wallet.KindClient, "MTN_MONEY", "40.00", "", ""))
	require.NoError(t, ledger.Credit(ctx, "cl_1", wallet.KindClient, "MPESA", "40.00", "", ""))

	tx, err := mgr.Create(ctx, ParentSale, "sale_1", "cl_1", "30.00", MethodMobileMoney)
	require.NoError(t, err)

	completed, err := mgr.Complete(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "MTN_MONEY", completed.SettledVia)

	// MTN debited, MPESA untouched
	mtn, _ := ledger.Balance(ctx, "cl_1", "MTN_MONEY")
	mpesa, _ := ledger.Balance(ctx, "cl_1", "MPESA")
	assert.Equal(t, "10.00", mtn)
	assert.Equal(t, "40.00", mpesa)
}

func TestCompleteMobileMoneyAllShort(t *testing.T) {
	ctx := context.Background()
	mgr, ledger := newTestManager()

	require.NoError(t, ledger.Credit(ctx, "cl_1", wallet.KindClient, "AIRTEL_MONEY", "5.00", "", ""))

	tx, err := mgr.Create(ctx, ParentSale, "sale_1", "cl_1", "30.00", MethodMobileMoney)
	require.NoError(t, err)

	_, err = mgr.Complete(ctx, tx.ID)
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)
}

func TestCompleteCashNoDebit(t *testing.T) {
	ctx := context.Background()
	mgr, ledger := newTestManager()

	tx, err := mgr.Create(ctx, ParentSale, "sale_1", "cl_1", "30.00", MethodCash)
	require.NoError(t, err)

	completed, err := mgr.Complete(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)
	assert.Empty(t, completed.SettledVia)

	bal, _ := ledger.Balance(ctx, "cl_1", "")
	assert.Equal(t, "0.00", bal)
}

func TestFailTerminal(t *testing.T) {
	ctx := context.Background()
	mgr, ledger := newTestManager()

	require.NoError(t, ledger.Credit(ctx, "cl_1", wallet.KindClient, wallet.MethodToken, "100.00", "", ""))

	tx, err := mgr.Create(ctx, ParentOrder, "ord_1", "cl_1", "28.00", MethodToken)
	require.NoError(t, err)

	failed, err := mgr.Fail(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)

	// FAILED is terminal: neither complete nor fail again
	_, err = mgr.Complete(ctx, tx.ID)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = mgr.Fail(ctx, tx.ID)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	bal, _ := ledger.Balance(ctx, "cl_1", wallet.MethodToken)
	assert.Equal(t, "100.00", bal)
}

func TestConcurrentCompletionSingleDebit(t *testing.T) {
	ctx := context.Background()
	mgr, ledger := newTestManager()

	require.NoError(t, ledger.Credit(ctx, "cl_1", wallet.KindClient, wallet.MethodToken, "100.00", "", ""))

	tx, err := mgr.Create(ctx, ParentOrder, "ord_1", "cl_1", "28.00", MethodToken)
	require.NoError(t, err)

	const attempts = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := mgr.Complete(ctx, tx.ID); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded, "exactly one completion should succeed")

	bal, _ := ledger.Balance(ctx, "cl_1", wallet.MethodToken)
	assert.Equal(t, "72.00", bal, "funds debited exactly once")
}
