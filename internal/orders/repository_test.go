package orders

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkFulfilledClaimsLiveOrdersOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.seedProduct(t, 5)
	order := f.seedOrder(t, uuid.New(), product, 1, enums.OrderStatusProcessing, false)

	won, err := f.repo.MarkFulfilled(ctx, order.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, won)

	won, err = f.repo.MarkFulfilled(ctx, order.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, won, "second claim must lose")
}

func TestMarkFulfilledRefusesCancelledOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.seedProduct(t, 5)
	order := f.seedOrder(t, uuid.New(), product, 1, enums.OrderStatusCancelled, false)

	won, err := f.repo.MarkFulfilled(ctx, order.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, won)

	stored, err := f.repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, stored.Fulfilled())
}

func TestFindByIDForUpdateInsideTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := f.seedProduct(t, 5)
	order := f.seedOrder(t, uuid.New(), product, 1, enums.OrderStatusPending, false)

	got, err := f.svc.Cancel(ctx, order.UserID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled.String(), got.Status)

	locked, err := f.repo.FindByIDForUpdate(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, locked.Status)

	_, err = f.repo.FindByIDForUpdate(ctx, uuid.New())
	require.Error(t, err)
}

func TestHasDeliveredProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	bought := f.seedProduct(t, 5)
	pending := f.seedProduct(t, 5)
	f.seedOrder(t, userID, bought, 1, enums.OrderStatusDelivered, true)
	f.seedOrder(t, userID, pending, 1, enums.OrderStatusShipped, true)

	ok, err := f.repo.HasDeliveredProduct(ctx, userID, bought.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.repo.HasDeliveredProduct(ctx, userID, pending.ID)
	require.NoError(t, err)
	assert.False(t, ok, "shipped orders do not count")

	ok, err = f.repo.HasDeliveredProduct(ctx, uuid.New(), bought.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
