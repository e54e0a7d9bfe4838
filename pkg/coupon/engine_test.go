package coupon_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/seatshare/pkg/coupon"
)

type orderHistoryMock struct {
	mock.Mock
}

func (m *orderHistoryMock) HasCompletedOrder(ctx context.Context, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

type noHistory struct{}

func (noHistory) HasCompletedOrder(context.Context, uuid.UUID) (bool, error) { return false, nil }

var spotify = coupon.Target{ProductID: "spotify-family", Category: "music"}

func ptr[T any](v T) *T { return &v }

func newEngine(t *testing.T, opts ...coupon.Option) (*coupon.Engine, *coupon.MemoryStore) {
	t.Helper()
	store := coupon.NewMemoryStore()
	return coupon.NewEngine(store, noHistory{}, opts...), store
}

func mustCreate(t *testing.T, e *coupon.Engine, p coupon.CreateParams) *coupon.Coupon {
	t.Helper()
	c, err := e.CreateCoupon(context.Background(), p)
	require.NoError(t, err)
	return c
}

func TestEngine_CreateCoupon(t *testing.T) {
	t.Parallel()

	t.Run("normalizes code and scope", func(t *testing.T) {
		t.Parallel()
		e, _ := newEngine(t)
		c := mustCreate(t, e, coupon.CreateParams{Code: " summer-25 ", PercentOff: 25, Scope: " Category ", Category: ptr("music"), MaxRedemptions: coupon.Unlimited})
		assert.Equal(t, "SUMMER25", c.Code)
		assert.Equal(t, coupon.ScopeCategory, c.Scope)
		assert.Equal(t, coupon.StatusActive, c.Status)
	})

	t.Run("empty scope defaults to global", func(t *testing.T) {
		t.Parallel()
		e, _ := newEngine(t)
		c := mustCreate(t, e, coupon.CreateParams{Code: "ALL10", PercentOff: 10, MaxRedemptions: coupon.Unlimited})
		assert.Equal(t, coupon.ScopeGlobal, c.Scope)
	})

	t.Run("duplicate code", func(t *testing.T) {
		t.Parallel()
		e, _ := newEngine(t)
		mustCreate(t, e, coupon.CreateParams{Code: "DUP", PercentOff: 10, MaxRedemptions: 1})
		_, err := e.CreateCoupon(context.Background(), coupon.CreateParams{Code: "dup", PercentOff: 5, MaxRedemptions: 1})
		assert.ErrorIs(t, err, coupon.ErrCodeTaken)
	})

	tests := []struct {
		name string
		p    coupon.CreateParams
	}{
		{"empty code", coupon.CreateParams{Code: "--", PercentOff: 10}},
		{"percent above 100", coupon.CreateParams{Code: "X", PercentOff: 101}},
		{"negative percent", coupon.CreateParams{Code: "X", PercentOff: -1}},
		{"cap below unlimited", coupon.CreateParams{Code: "X", PercentOff: 10, MaxRedemptions: -2}},
		{"zero term", coupon.CreateParams{Code: "X", PercentOff: 10, TermMonths: ptr(0)}},
		{"inverted window", coupon.CreateParams{
			Code: "X", PercentOff: 10,
			StartsAt: ptr(time.Now()), EndsAt: ptr(time.Now().Add(-time.Hour)),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, _ := newEngine(t)
			_, err := e.CreateCoupon(context.Background(), tt.p)
			assert.ErrorIs(t, err, coupon.ErrInvalidParams)
		})
	}
}

func TestEngine_ValidateCouponForOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	user := uuid.New()

	t.Run("global coupon discount", func(t *testing.T) {
		t.Parallel()
		e, _ := newEngine(t)
		mustCreate(t, e, coupon.CreateParams{Code: "SAVE20", PercentOff: 20, MaxRedemptions: coupon.Unlimited})

		v, err := e.ValidateCouponForOrder(ctx, "save20", user, spotify, 1080, 12)
		require.NoError(t, err)
		assert.Equal(t, int64(216), v.DiscountCents)
		assert.Equal(t, coupon.Claim{Spec: coupon.ClaimSpec{Match: coupon.MatchAny}}, v.Rule)
	})

	t.Run("hundred percent never exceeds subtotal", func(t *testing.T) {
		t.Parallel()
		e, _ := newEngine(t)
		mustCreate(t, e, coupon.CreateParams{Code: "FREE", PercentOff: 100, MaxRedemptions: coupon.Unlimited})

		v, err := e.ValidateCouponForOrder(ctx, "FREE", user, spotify, 999, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(999), v.DiscountCents)
	})

	tests := []struct {
		name   string
		p      coupon.CreateParams
		code   string
		target coupon.Target
		term   int
		want   error
	}{
		{
			name: "unknown code",
			p:    coupon.CreateParams{Code: "REAL", PercentOff: 10, MaxRedemptions: coupon.Unlimited},
			code: "FAKE", target: spotify, term: 1,
			want: coupon.ErrCouponInvalid,
		},
		{
			name: "not started",
			p:    coupon.CreateParams{Code: "SOON", PercentOff: 10, MaxRedemptions: coupon.Unlimited, StartsAt: ptr(time.Now().Add(time.Hour))},
			code: "SOON", target: spotify, term: 1,
			want: coupon.ErrCouponInvalid,
		},
		{
			name: "ended",
			p:    coupon.CreateParams{Code: "OLD", PercentOff: 10, MaxRedemptions: coupon.Unlimited, EndsAt: ptr(time.Now().Add(-time.Hour))},
			code: "OLD", target: spotify, term: 1,
			want: coupon.ErrCouponInvalid,
		},
		{
			name: "bound to another user",
			p:    coupon.CreateParams{Code: "MINE", PercentOff: 10, MaxRedemptions: coupon.Unlimited, BoundUserID: ptr(uuid.New())},
			code: "MINE", target: spotify, term: 1,
			want: coupon.ErrCouponInvalid,
		},
		{
			name: "category mismatch",
			p:    coupon.CreateParams{Code: "VIDEO", PercentOff: 10, Scope: "category", Category: ptr("video"), MaxRedemptions: coupon.Unlimited},
			code: "VIDEO", target: spotify, term: 1,
			want: coupon.ErrScopeMismatch,
		},
		{
			name: "product mismatch",
			p:    coupon.CreateParams{Code: "NETFLIX", PercentOff: 10, Scope: "product", ProductID: ptr("netflix-premium"), MaxRedemptions: coupon.Unlimited},
			code: "NETFLIX", target: spotify, term: 1,
			want: coupon.ErrScopeMismatch,
		},
		{
			name: "term mismatch",
			p:    coupon.CreateParams{Code: "YEAR", PercentOff: 10, TermMonths: ptr(12), MaxRedemptions: coupon.Unlimited},
			code: "YEAR", target: spotify, term: 6,
			want: coupon.ErrTermMismatch,
		},
		{
			name: "zero cap",
			p:    coupon.CreateParams{Code: "NONE", PercentOff: 10, MaxRedemptions: 0},
			code: "NONE", target: spotify, term: 1,
			want: coupon.ErrMaxRedemptions,
		},
		{
			name: "unknown scope is unavailable",
			p:    coupon.CreateParams{Code: "ODD", PercentOff: 10, Scope: "mystery", MaxRedemptions: coupon.Unlimited},
			code: "ODD", target: spotify, term: 1,
			want: coupon.ErrCouponInvalid,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, _ := newEngine(t)
			mustCreate(t, e, tt.p)

			_, err := e.ValidateCouponForOrder(ctx, tt.code, user, tt.target, 1000, tt.term)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var rej *coupon.Rejection
			require.ErrorAs(t, err, &rej)
		})
	}

	t.Run("matching category and product", func(t *testing.T) {
		t.Parallel()
		e, _ := newEngine(t)
		mustCreate(t, e, coupon.CreateParams{Code: "MUSIC", PercentOff: 10, Scope: "category", Category: ptr("Music"), MaxRedemptions: coupon.Unlimited})
		mustCreate(t, e, coupon.CreateParams{Code: "SPOT", PercentOff: 10, Scope: "product", ProductID: ptr("spotify-family"), MaxRedemptions: coupon.Unlimited})

		_, err := e.ValidateCouponForOrder(ctx, "MUSIC", user, spotify, 1000, 1)
		assert.NoError(t, err)
		_, err = e.ValidateCouponForOrder(ctx, "SPOT", user, spotify, 1000, 1)
		assert.NoError(t, err)
	})

	t.Run("paused coupon", func(t *testing.T) {
		t.Parallel()
		e, _ := newEngine(t)
		c := mustCreate(t, e, coupon.CreateParams{Code: "PAUSE", PercentOff: 10, MaxRedemptions: coupon.Unlimited})
		require.NoError(t, e.SetStatus(ctx, c.ID, coupon.StatusPaused))

		_, err := e.ValidateCouponForOrder(ctx, "PAUSE", user, spotify, 1000, 1)
		assert.ErrorIs(t, err, coupon.ErrCouponInvalid)
	})

	t.Run("already redeemed by user", func(t *testing.T) {
		t.Parallel()
		e, _ := newEngine(t)
		c := mustCreate(t, e, coupon.CreateParams{Code: "ONCE", PercentOff: 10, MaxRedemptions: coupon.Unlimited})
		_, err := e.ReserveCouponRedemption(ctx, c.ID, user, uuid.New())
		require.NoError(t, err)

		_, err = e.ValidateCouponForOrder(ctx, "ONCE", user, spotify, 1000, 1)
		assert.ErrorIs(t, err, coupon.ErrAlreadyRedeemed)
		reason, ok := coupon.ReasonOf(err)
		assert.True(t, ok)
		assert.Equal(t, coupon.ReasonAlreadyRedeemed, reason)
	})
}

func TestEngine_FirstOrderOnly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	returning, fresh := uuid.New(), uuid.New()

	history := &orderHistoryMock{}
	history.On("HasCompletedOrder", mock.Anything, returning).Return(true, nil)
	history.On("HasCompletedOrder", mock.Anything, fresh).Return(false, nil)

	e := coupon.NewEngine(coupon.NewMemoryStore(), history)
	mustCreate(t, e, coupon.CreateParams{Code: "WELCOME", PercentOff: 50, FirstOrderOnly: true, MaxRedemptions: coupon.Unlimited})

	_, err := e.ValidateCouponForOrder(ctx, "WELCOME", returning, spotify, 1000, 1)
	assert.ErrorIs(t, err, coupon.ErrCouponInvalid)

	v, err := e.ValidateCouponForOrder(ctx, "WELCOME", fresh, spotify, 1000, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(500), v.DiscountCents)

	history.AssertExpectations(t)
}

func TestEngine_FirstOrderOnlyHistoryFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	history := &orderHistoryMock{}
	history.On("HasCompletedOrder", mock.Anything, mock.Anything).Return(false, boom)

	e := coupon.NewEngine(coupon.NewMemoryStore(), history)
	mustCreate(t, e, coupon.CreateParams{Code: "WELCOME", PercentOff: 50, FirstOrderOnly: true, MaxRedemptions: coupon.Unlimited})

	_, err := e.ValidateCouponForOrder(context.Background(), "WELCOME", uuid.New(), spotify, 1000, 1)
	assert.ErrorIs(t, err, boom)
	_, isRejection := coupon.ReasonOf(err)
	assert.False(t, isRejection)
}

func TestEngine_ReserveLastSlotConcurrently(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t)
	c := mustCreate(t, e, coupon.CreateParams{Code: "LAST", PercentOff: 10, MaxRedemptions: 1})

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ReserveCouponRedemption(context.Background(), c.ID, uuid.New(), uuid.New())
			if err == nil {
				succeeded.Add(1)
				return
			}
			assert.ErrorIs(t, err, coupon.ErrMaxRedemptions)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
}

func TestEngine_RedemptionLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, store := newEngine(t)
	c := mustCreate(t, e, coupon.CreateParams{Code: "ONE", PercentOff: 10, MaxRedemptions: 1})

	first, second := uuid.New(), uuid.New()
	orderA := uuid.New()
	_, err := e.ReserveCouponRedemption(ctx, c.ID, first, orderA)
	require.NoError(t, err)

	_, err = e.ReserveCouponRedemption(ctx, c.ID, second, uuid.New())
	assert.ErrorIs(t, err, coupon.ErrMaxRedemptions)

	// Voiding frees the slot for someone else.
	require.NoError(t, e.VoidRedemptionForOrder(ctx, orderA))
	require.NoError(t, e.VoidRedemptionForOrder(ctx, orderA))

	orderB := uuid.New()
	_, err = e.ReserveCouponRedemption(ctx, c.ID, second, orderB)
	require.NoError(t, err)

	require.NoError(t, e.FinalizeRedemptionForOrder(ctx, orderB))
	require.NoError(t, e.FinalizeRedemptionForOrder(ctx, orderB))

	r, err := store.RedemptionForOrder(ctx, orderB)
	require.NoError(t, err)
	assert.Equal(t, coupon.RedemptionRedeemed, r.Status)

	// A redeemed slot is not voidable.
	require.NoError(t, e.VoidRedemptionForOrder(ctx, orderB))
	count, _, err := store.ActiveRedemptions(ctx, c.ID, second)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	err = e.FinalizeRedemptionForOrder(ctx, orderA)
	assert.ErrorIs(t, err, coupon.ErrRedemptionNotFound)
	err = e.FinalizeRedemptionForOrder(ctx, uuid.New())
	assert.ErrorIs(t, err, coupon.ErrRedemptionNotFound)
}

func TestEngine_ReserveRejectsPausedCoupon(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, _ := newEngine(t)
	c := mustCreate(t, e, coupon.CreateParams{Code: "P", PercentOff: 10, MaxRedemptions: coupon.Unlimited})
	require.NoError(t, e.SetStatus(ctx, c.ID, coupon.StatusArchived))

	_, err := e.ReserveCouponRedemption(ctx, c.ID, uuid.New(), uuid.New())
	assert.ErrorIs(t, err, coupon.ErrCouponInvalid)

	_, err = e.ReserveCouponRedemption(ctx, uuid.New(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, coupon.ErrCouponInvalid)
}
