package freelance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkalala/sokosettle/internal/account"
	"github.com/mkalala/sokosettle/internal/payment"
	"github.com/mkalala/sokosettle/internal/wallet"
)

type fixture struct {
	manager  *Manager
	ledger   *wallet.Ledger
	payments *payment.Manager
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	accounts := account.NewService(account.NewMemoryStore())
	ledger := wallet.New(wallet.NewMemoryStore())
	payments := payment.New(payment.NewMemoryStore(), ledger,
		[]string{"AIRTEL_MONEY", "MTN_MONEY", "ORANGE_MONEY", "MPESA"})

	mgr := New(NewMemoryStore(), accounts, payments, ledger, 10)

	require.NoError(t, accounts.PutClient(ctx, &account.Client{ID: "cl_1", Name: "Amina"}))
	require.NoError(t, accounts.PutBusiness(ctx, &account.Business{ID: "biz_1", Name: "Atelier"}))

	svc := &Service{BusinessID: "biz_1", Name: "Logo design", Price: "100.00"}
	require.NoError(t, mgr.CreateService(ctx, svc))

	return &fixture{manager: mgr, ledger: ledger, payments: payments, service: svc}
}

func TestCreateHoldsEscrowWithoutDebit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.ledger.Credit(ctx, "cl_1", wallet.KindClient, wallet.MethodToken, "150.00", "", ""))

	o, err := f.manager.Create(ctx, "cl_1", f.service.ID, 1, payment.MethodToken)
	require.NoError(t, err)

	assert.Equal(t, "100.00", o.TotalAmount)
	assert.Equal(t, "100.00", o.EscrowAmount)
	assert.Equal(t, EscrowHeld, o.EscrowStatus)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, int64(10), o.CommissionPercent)

	// Funds verified, not debited
	bal, _ := f.ledger.Balance(ctx, "cl_1", wallet.MethodToken)
	assert.Equal(t, "150.00", bal)
}

func TestCreateInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.ledger.Credit(ctx, "cl_1", wallet.KindClient, wallet.MethodToken, "50.00", "", ""))

	_, err := f.manager.Create(ctx, "cl_1", f.service.ID, 1, payment.MethodToken)
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)
}

func TestReleaseRequiresCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.ledger.Credit(ctx, "cl_1", wallet.KindClient, wallet.MethodToken, "150.00", "", ""))
	o, err := f.manager.Create(ctx, "cl_1", f.service.ID, 1, payment.MethodToken)
	require.NoError(t, err)

	_, err = f.manager.Release(ctx, o.ID, "cl_1", RoleClient)
	assert.ErrorIs(t, err, ErrNotCompleted)

	got, _ := f.manager.Get(ctx, o.ID)
	assert.Equal(t, EscrowHeld, got.EscrowStatus)
}

func TestReleaseSplitsFundsAtomically(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.ledger.Credit(ctx, "cl_1", wallet.KindClient, wallet.MethodToken, "150.00", "", ""))
	o, err := f.manager.Create(ctx, "cl_1", f.service.ID, 1, payment.MethodToken)
	require.NoError(t, err)

	_, err = f.manager.Complete(ctx, o.ID, "cl_1", RoleClient)
	require.NoError(t, err)

	released, err := f.manager.Release(ctx, o.ID, "biz_1", RoleBusiness)
	require.NoError(t, err)
	assert.Equal(t, EscrowReleased, released.EscrowStatus)
	require.NotNil(t, released.EscrowReleasedAt)

	// Client pays 100.00, business gets 90.00, platform keeps 10.00
	clientBal, _ := f.ledger.Balance(ctx, "cl_1", wallet.MethodToken)
	bizBal, _ := f.ledger.Balance(ctx, "biz_1", wallet.MethodToken)
	assert.Equal(t, "50.00", clientBal)
	assert.Equal(t, "90.00", bizBal)

	// Payment settled
	tx, err := f.payments.Get(ctx, released.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, tx.Status)

	// Releasing again is rejected, nothing moves
	_, err = f.manager.Release(ctx, o.ID, "biz_1", RoleBusiness)
	assert.ErrorIs(t, err, ErrEscrowNotHeld)
	bizBal, _ = f.ledger.Balance(ctx, "biz_1", wallet.MethodToken)
	assert.Equal(t, "90.00", bizBal)
}

func TestReleaseRevalidatesBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.ledger.Credit(ctx, "cl_1", wallet.KindClient, wallet.MethodToken, "150.00", "", ""))
	o, err := f.manager.Create(ctx, "cl_1", f.service.ID, 1, payment.MethodToken)
	require.NoError(t, err)
	_, err = f.manager.Complete(ctx, o.ID, "cl_1", RoleClient)
	require.NoError(t, err)

	// Client spends the balance elsewhere before release
	require.NoError(t, f.ledger.Debit(ctx, "cl_1", wallet.KindClient, wallet.MethodToken, "120.00", "other", ""))

	_, err = f.manager.Release(ctx, o.ID, "biz_1", RoleBusiness)
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)

	// Escrow stays HELD, business got nothing
	got, _ := f.manager.Get(ctx, o.ID)
	assert.Equal(t, EscrowHeld, got.EscrowStatus)
	bizBal, _ := f.ledger.Balance(ctx, "biz_1", wallet.MethodToken)
	assert.Equal(t, "0.00", bizBal)
}

func TestReleaseRequiresSettledExternalPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	o, err := f.manager.Create(ctx, "cl_1", f.service.ID, 1, payment.MethodMobileMoney)
	require.NoError(t, err)
	_, err = f.manager.Complete(ctx, o.ID, "cl_1", RoleClient)
	require.NoError(t, err)

	// The client never paid; releasing must not credit the business
	_, err = f.manager.Release(ctx, o.ID, "biz_1", RoleBusiness)
	assert.ErrorIs(t, err, ErrPaymentNotSettled)

	got, _ := f.manager.Get(ctx, o.ID)
	assert.Equal(t, EscrowHeld, got.EscrowStatus)
	bizBal, _ := f.ledger.Balance(ctx, "biz_1", wallet.MethodToken)
	assert.Equal(t, "0.00", bizBal)

	// Once the mobile money payment actually settles, release goes through
	require.NoError(t, f.ledger.Credit(ctx, "cl_1", wallet.KindClient, "AIRTEL_MONEY", "100.00", "", ""))
	tx, err := f.payments.Complete(ctx, o.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, "AIRTEL_MONEY", tx.SettledVia)

	released, err := f.manager.Release(ctx, o.ID, "biz_1", RoleBusiness)
	require.NoError(t, err)
	assert.Equal(t, EscrowReleased, released.EscrowStatus)

	// Client paid 100.00 on Airtel, business nets 90.00 in tokens
	airtelBal, _ := f.ledger.Balance(ctx, "cl_1", "AIRTEL_MONEY")
	bizBal, _ = f.ledger.Balance(ctx, "biz_1", wallet.MethodToken)
	assert.Equal(t, "0.00", airtelBal)
	assert.Equal(t, "90.00", bizBal)

	// The real settlement rail is preserved on the payment record
	tx, err = f.payments.Get(ctx, released.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, "AIRTEL_MONEY", tx.SettledVia)
}

func TestAuthorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.ledger.Credit(ctx, "cl_1", wallet.KindClient, wallet.MethodToken, "150.00", "", ""))
	o, err := f.manager.Create(ctx, "cl_1", f.service.ID, 1, payment.MethodToken)
	require.NoError(t, err)

	_, err = f.manager.Complete(ctx, o.ID, "cl_other", RoleClient)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.manager.Complete(ctx, o.ID, "biz_other", RoleBusiness)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.manager.Complete(ctx, o.ID, "cl_1", "admin")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.manager.Complete(ctx, o.ID, "biz_1", RoleBusiness)
	assert.NoError(t, err)
}

func TestCommissionMutableUntilSettlement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.ledger.Credit(ctx, "cl_1", wallet.KindClient, wallet.MethodToken, "150.00", "", ""))
	o, err := f.manager.Create(ctx, "cl_1", f.service.ID, 1, payment.MethodToken)
	require.NoError(t, err)

	_, err = f.manager.SetCommission(ctx, o.ID, 101)
	assert.ErrorIs(t, err, ErrInvalidCommission)

	updated, err := f.manager.SetCommission(ctx, o.ID, 25)
	require.NoError(t, err)
	assert.Equal(t, int64(25), updated.CommissionPercent)

	_, err = f.manager.Complete(ctx, o.ID, "cl_1", RoleClient)
	require.NoError(t, err)
	_, err = f.manager.Release(ctx, o.ID, "cl_1", RoleClient)
	require.NoError(t, err)

	// 100.00 at 25% commission -> business nets 75.00
	bizBal, _ := f.ledger.Balance(ctx, "biz_1", wallet.MethodToken)
	assert.Equal(t, "75.00", bizBal)

	// Settled escrow rejects further edits
	_, err = f.manager.SetCommission(ctx, o.ID, 5)
	assert.ErrorIs(t, err, ErrAlreadySettled)
}

func TestEscrowAmountImmutable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.ledger.Credit(ctx, "cl_1", wallet.KindClient, wallet.MethodToken, "300.00", "", ""))
	o, err := f.manager.Create(ctx, "cl_1", f.service.ID, 2, payment.MethodToken)
	require.NoError(t, err)
	assert.Equal(t, "200.00", o.EscrowAmount)

	// Repricing the service never touches an existing order's escrow
	f.service.Price = "999.00"
	require.NoError(t, f.manager.CreateService(ctx, f.service))

	got, _ := f.manager.Get(ctx, o.ID)
	assert.Equal(t, "200.00", got.EscrowAmount)
	assert.Equal(t, "200.00", got.TotalAmount)
}

func TestRefundNonCompletedOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.ledger.Credit(ctx, "cl_1", wallet.KindClient, wallet.MethodToken, "150.00", "", ""))
	o, err := f.manager.Create(ctx, "cl_1", f.service.ID, 1, payment.MethodToken)
	require.NoError(t, err)

	refunded, err := f.manager.Refund(ctx, o.ID, "cl_1", RoleClient)
	require.NoError(t, err)
	assert.Equal(t, EscrowRefunded, refunded.EscrowStatus)
	assert.Equal(t, StatusCancelled, refunded.Status)

	// Wallet never debited, so full balance remains
	bal, _ := f.ledger.Balance(ctx, "cl_1", wallet.MethodToken)
	assert.Equal(t, "150.00", bal)

	// Completed orders cannot be refunded
	o2, err := f.manager.Create(ctx, "cl_1", f.service.ID, 1, payment.MethodToken)
	require.NoError(t, err)
	_, err = f.manager.Complete(ctx, o2.ID, "cl_1", RoleClient)
	require.NoError(t, err)
	_, err = f.manager.Refund(ctx, o2.ID, "cl_1", RoleClient)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
