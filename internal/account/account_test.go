package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Existence(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore())

	require.NoError(t, svc.PutClient(ctx, &Client{ID: "cl_1", Name: "Amina"}))

	assert.NoError(t, svc.ClientExists(ctx, "cl_1"))
	assert.ErrorIs(t, svc.ClientExists(ctx, "cl_missing"), ErrClientNotFound)

	_, err := svc.GetBusiness(ctx, "biz_missing")
	assert.ErrorIs(t, err, ErrBusinessNotFound)
}

func TestService_WorkerStoreAccess(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore())

	require.NoError(t, svc.PutWorker(ctx, &Worker{
		ID:         "wk_1",
		BusinessID: "biz_1",
		StoreID:    "st_1",
		Name:       "Jules",
	}))

	assert.NoError(t, svc.WorkerHasStoreAccess(ctx, "wk_1", "st_1"))
	assert.ErrorIs(t, svc.WorkerHasStoreAccess(ctx, "wk_1", "st_other"), ErrStoreAccessDenied)
	assert.ErrorIs(t, svc.WorkerHasStoreAccess(ctx, "wk_missing", "st_1"), ErrWorkerNotFound)
}

func TestService_IncrementProductsSold(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore())

	require.NoError(t, svc.PutBusiness(ctx, &Business{ID: "biz_1", Name: "Soko Mart"}))

	require.NoError(t, svc.IncrementProductsSold(ctx, "biz_1", 3))
	require.NoError(t, svc.IncrementProductsSold(ctx, "biz_1", 2))
	// Zero and negative are no-ops
	require.NoError(t, svc.IncrementProductsSold(ctx, "biz_1", 0))

	b, err := svc.GetBusiness(ctx, "biz_1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), b.TotalProductsSold)

	assert.ErrorIs(t, svc.IncrementProductsSold(ctx, "biz_missing", 1), ErrBusinessNotFound)
}
