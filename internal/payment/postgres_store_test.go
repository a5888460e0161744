package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkalala/sokosettle/internal/testutil"
)

func TestPostgresStore_CreateAndGet(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)

	tx := &Transaction{
		ID:         "pay_pg1",
		ParentKind: ParentOrder,
		ParentID:   "ord_pg1",
		PayerID:    "cl_pg1",
		Amount:     "125.00",
		Method:     "TOKEN",
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.Create(ctx, tx))

	got, err := store.Get(ctx, "pay_pg1")
	require.NoError(t, err)
	assert.Equal(t, "125.00", got.Amount)
	assert.Equal(t, StatusPending, got.Status)

	byParent, err := store.GetByParent(ctx, ParentOrder, "ord_pg1")
	require.NoError(t, err)
	assert.Equal(t, "pay_pg1", byParent.ID)
}

func TestPostgresStore_OneTransactionPerParent(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)

	first := &Transaction{
		ID:         "pay_pg2",
		ParentKind: ParentSale,
		ParentID:   "sale_pg1",
		PayerID:    "cl_pg1",
		Amount:     "40.00",
		Method:     "CASH",
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.Create(ctx, first))

	dup := &Transaction{
		ID:         "pay_pg3",
		ParentKind: ParentSale,
		ParentID:   "sale_pg1",
		PayerID:    "cl_pg1",
		Amount:     "40.00",
		Method:     "CASH",
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	assert.ErrorIs(t, store.Create(ctx, dup), ErrDuplicatePayment)
}

func TestPostgresStore_CompleteOnlyFromPending(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)

	tx := &Transaction{
		ID:         "pay_pg4",
		ParentKind: ParentFreelanceOrder,
		ParentID:   "fro_pg1",
		PayerID:    "cl_pg2",
		Amount:     "300.00",
		Method:     "MOBILE_MONEY",
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.Create(ctx, tx))

	settledAt := time.Now().UTC()
	require.NoError(t, store.MarkCompleted(ctx, "pay_pg4", "AIRTEL_MONEY", settledAt))

	got, err := store.Get(ctx, "pay_pg4")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "AIRTEL_MONEY", got.SettledVia)
	require.NotNil(t, got.TransactionDate)

	// Terminal states reject further transitions.
	assert.ErrorIs(t, store.MarkCompleted(ctx, "pay_pg4", "AIRTEL_MONEY", settledAt), ErrInvalidStatus)
	assert.ErrorIs(t, store.MarkFailed(ctx, "pay_pg4"), ErrInvalidStatus)
}

func TestPostgresStore_UpdateAmountPendingOnly(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db)

	tx := &Transaction{
		ID:         "pay_pg5",
		ParentKind: ParentSale,
		ParentID:   "sale_pg2",
		PayerID:    "cl_pg3",
		Amount:     "10.00",
		Method:     "CARD",
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.Create(ctx, tx))

	require.NoError(t, store.UpdateAmount(ctx, "pay_pg5", "15.00"))
	require.NoError(t, store.MarkFailed(ctx, "pay_pg5"))
	assert.ErrorIs(t, store.UpdateAmount(ctx, "pay_pg5", "20.00"), ErrInvalidStatus)

	got, err := store.Get(ctx, "pay_pg5")
	require.NoError(t, err)
	assert.Equal(t, "15.00", got.Amount)
	assert.Equal(t, StatusFailed, got.Status)
}
