package order_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/seatshare/pkg/order"
)

func newOrder(userID uuid.UUID) *order.Order {
	return &order.Order{
		UserID:            userID,
		Currency:          "USD",
		SubtotalCents:     12000,
		TermDiscountCents: 1200,
		TotalCents:        10800,
		PaymentMethod:     order.PaymentCredits,
		Items: []order.Item{{
			ProductID:           "spotify-family",
			TermMonths:          12,
			BasePriceCents:      1000,
			TermDiscountPercent: 10,
			TotalCents:          10800,
		}},
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := order.NewMemoryStore()
	o := newOrder(uuid.New())

	require.NoError(t, store.CreateWithItems(ctx, o))
	assert.NotEqual(t, uuid.Nil, o.ID)
	assert.Equal(t, order.StatusPendingPayment, o.Status)
	assert.Equal(t, o.ID, o.Items[0].OrderID)

	got, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.TotalCents, got.TotalCents)
	require.Len(t, got.Items, 1)

	_, err = store.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestMemoryStore_CreateRejectsBadTotals(t *testing.T) {
	t.Parallel()

	o := newOrder(uuid.New())
	o.CouponDiscountCents = 100

	err := order.NewMemoryStore().CreateWithItems(context.Background(), o)
	assert.ErrorIs(t, err, order.ErrInvalidOrder)

	o = newOrder(uuid.New())
	o.Items = nil
	err = order.NewMemoryStore().CreateWithItems(context.Background(), o)
	assert.ErrorIs(t, err, order.ErrInvalidOrder)
}

func TestMemoryStore_CreateInTransactionRollsBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := order.NewMemoryStore()
	o := newOrder(uuid.New())
	boom := errors.New("reservation failed")

	err := store.CreateWithItemsInTransaction(ctx, o, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	_, err = store.Get(ctx, o.ID)
	assert.ErrorIs(t, err, order.ErrOrderNotFound)

	ok := newOrder(uuid.New())
	called := false
	require.NoError(t, store.CreateWithItemsInTransaction(ctx, ok, func(context.Context) error {
		called = true
		return nil
	}))
	assert.True(t, called)
	_, err = store.Get(ctx, ok.ID)
	assert.NoError(t, err)
}

func TestMemoryStore_StatusLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := order.NewMemoryStore()
	o := newOrder(uuid.New())
	require.NoError(t, store.CreateWithItems(ctx, o))

	require.NoError(t, store.UpdateStatus(ctx, o.ID, order.StatusCancelled, "insufficient_credits"))
	require.NoError(t, store.UpdateStatus(ctx, o.ID, order.StatusCancelled, "again"))

	err := store.UpdateStatus(ctx, o.ID, order.StatusInProcess, "")
	assert.ErrorIs(t, err, order.ErrTerminalStatus)

	got, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
	assert.Equal(t, "insufficient_credits", got.StatusReason)

	assert.ErrorIs(t, store.UpdateStatus(ctx, uuid.New(), order.StatusCancelled, ""), order.ErrOrderNotFound)
	assert.ErrorIs(t, store.UpdateStatus(ctx, o.ID, "shipped", ""), order.ErrInvalidStatus)
}

func TestMemoryStore_PaymentAndHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := order.NewMemoryStore()
	user := uuid.New()
	o := newOrder(user)
	require.NoError(t, store.CreateWithItems(ctx, o))

	has, err := store.HasCompletedOrder(ctx, user)
	require.NoError(t, err)
	assert.False(t, has)

	paidAt := time.Now()
	require.NoError(t, store.UpdatePayment(ctx, o.ID, "txn-1", paidAt))
	require.NoError(t, store.UpdateStatus(ctx, o.ID, order.StatusInProcess, ""))

	has, err = store.HasCompletedOrder(ctx, user)
	require.NoError(t, err)
	assert.True(t, has)

	got, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "txn-1", got.PaymentReference)
	require.NotNil(t, got.PaidAt)
	assert.WithinDuration(t, paidAt, *got.PaidAt, time.Second)

	assert.ErrorIs(t, store.UpdatePayment(ctx, uuid.New(), "x", paidAt), order.ErrOrderNotFound)
}

func TestPaymentMethod(t *testing.T) {
	t.Parallel()

	assert.False(t, order.PaymentCredits.IsExternal())
	assert.True(t, order.PaymentCard.IsExternal())
	assert.True(t, order.PaymentCrypto.IsExternal())
	assert.False(t, order.PaymentMethod("cash").Valid())
	assert.True(t, order.StatusFulfilled.IsTerminal())
	assert.False(t, order.StatusInProcess.IsTerminal())
}
