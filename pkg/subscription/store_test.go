package subscription_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/seatshare/pkg/subscription"
)

var yearly = subscription.Snapshot{BasePriceCents: 1000, Currency: "USD", TermMonths: 12, DiscountPercent: 10}

func TestNew(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)
	s := subscription.New(uuid.New(), uuid.New(), "spotify-family", yearly, 10800, true, now)
	assert.Equal(t, subscription.StatusActive, s.Status)
	assert.Equal(t, time.Date(2027, 1, 31, 12, 0, 0, 0, time.UTC), s.ExpiresAt)
	assert.Equal(t, time.Date(2028, 1, 31, 12, 0, 0, 0, time.UTC), s.NextPeriodEnd())
	assert.False(t, s.IsLapsedAt(now))
	assert.True(t, s.IsLapsedAt(s.ExpiresAt))

	price, err := s.Snapshot.TermPrice()
	require.NoError(t, err)
	assert.Equal(t, int64(10800), price.TotalPriceCents)
}

func TestMemoryStore_CreateAndLookup(t *testing.T) {
	t.Parallel()

	store := subscription.NewMemoryStore()
	ctx := context.Background()
	user := uuid.New()

	s := subscription.New(user, uuid.New(), "spotify-family", yearly, 10800, true, time.Now())
	require.NoError(t, store.Create(ctx, s))

	dup := subscription.New(user, uuid.New(), "spotify-family", yearly, 10800, false, time.Now())
	assert.ErrorIs(t, store.Create(ctx, dup), subscription.ErrSubscriptionAlreadyExists)

	has, err := store.HasActive(ctx, user, "spotify-family")
	require.NoError(t, err)
	assert.True(t, has)

	byOrder, err := store.GetByOrder(ctx, s.OrderID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, byOrder.ID)
	assert.Equal(t, yearly, byOrder.Snapshot)

	_, err = store.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	_, err = store.GetByOrder(ctx, uuid.New())
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
}

func TestMemoryStore_ExtendPeriodIsCompareAndSet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := subscription.NewMemoryStore()
	s := subscription.New(uuid.New(), uuid.New(), "spotify-family", yearly, 10800, true, time.Now())
	require.NoError(t, store.Create(ctx, s))

	var (
		wg       sync.WaitGroup
		extended atomic.Int32
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ExtendPeriod(ctx, s.ID, s.ExpiresAt, s.NextPeriodEnd(), time.Now())
			if err == nil {
				extended.Add(1)
				return
			}
			assert.ErrorIs(t, err, subscription.ErrPeriodConflict)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), extended.Load())

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.NextPeriodEnd(), got.ExpiresAt)
	assert.Equal(t, 1, got.RenewalCount)
	require.NotNil(t, got.LastRenewedAt)

	_, err = store.ExtendPeriod(ctx, uuid.New(), s.ExpiresAt, s.NextPeriodEnd(), time.Now())
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
}

func TestMemoryStore_RenewalQueueAndExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := subscription.NewMemoryStore()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	monthly := subscription.Snapshot{BasePriceCents: 1000, Currency: "USD", TermMonths: 1}

	soon := subscription.New(uuid.New(), uuid.New(), "a", monthly, 1000, true, now.AddDate(0, -1, 1))
	later := subscription.New(uuid.New(), uuid.New(), "b", monthly, 1000, true, now.AddDate(0, -1, 2))
	manual := subscription.New(uuid.New(), uuid.New(), "c", monthly, 1000, false, now.AddDate(0, -1, 1))
	lapsed := subscription.New(uuid.New(), uuid.New(), "d", monthly, 1000, false, now.AddDate(0, -2, 0))
	for _, s := range []*subscription.Subscription{soon, later, manual, lapsed} {
		require.NoError(t, store.Create(ctx, s))
	}

	due, err := store.ListDueForRenewal(ctx, now.Add(72*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, soon.ID, due[0].ID)
	assert.Equal(t, later.ID, due[1].ID)

	due, err = store.ListDueForRenewal(ctx, now.Add(72*time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	n, err := store.ExpireLapsed(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Get(ctx, lapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusExpired, got.Status)

	has, err := store.HasActive(ctx, lapsed.UserID, "d")
	require.NoError(t, err)
	assert.False(t, has)

	// An expired row does not block a new purchase of the same product.
	again := subscription.New(lapsed.UserID, uuid.New(), "d", monthly, 1000, false, now)
	assert.NoError(t, store.Create(ctx, again))
}

func TestMemoryStore_CreateValidates(t *testing.T) {
	t.Parallel()

	s := subscription.New(uuid.New(), uuid.New(), "", yearly, 10800, false, time.Now())
	assert.ErrorIs(t, subscription.NewMemoryStore().Create(context.Background(), s), subscription.ErrInvalidSubscription)
}
