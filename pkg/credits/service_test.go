package credits_test

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/seatshare/pkg/credits"
	"github.com/dmitrymomot/seatshare/pkg/pricing"
)

func newService(t *testing.T, opts ...credits.ServiceOption) (*credits.Service, *credits.MemoryStore) {
	t.Helper()
	store := credits.NewMemoryStore()
	return credits.NewService(store, opts...), store
}

func deposit(t *testing.T, svc *credits.Service, userID uuid.UUID, amount int64) *credits.Transaction {
	t.Helper()
	tx, err := svc.Deposit(context.Background(), credits.DepositParams{UserID: userID, Amount: amount, Description: "top up"})
	require.NoError(t, err)
	return tx
}

func TestService_DepositAndSpend(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	user := uuid.New()

	dep := deposit(t, svc, user, 1500)
	assert.Equal(t, credits.TypeDeposit, dep.Type)
	assert.Equal(t, int64(0), dep.BalanceBefore)
	assert.Equal(t, int64(1500), dep.BalanceAfter)
	assert.Equal(t, "USD", dep.Currency)

	orderID := uuid.New()
	tx, err := svc.Spend(ctx, credits.SpendParams{
		UserID:      user,
		Amount:      900,
		Description: "Spotify Family, 1 month",
		Reference:   orderID.String(),
		Metadata:    credits.Metadata{"order_id": orderID.String()},
	})
	require.NoError(t, err)
	assert.Equal(t, credits.TypePurchase, tx.Type)
	assert.Equal(t, int64(-900), tx.Amount)
	assert.Equal(t, int64(1500), tx.BalanceBefore)
	assert.Equal(t, int64(600), tx.BalanceAfter)

	bal, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(600), bal.TotalBalance)
	assert.Equal(t, int64(600), bal.AvailableBalance)

	found, err := svc.FindByReference(ctx, orderID.String())
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, tx.ID, found[0].ID)
}

func TestService_SpendInsufficientWritesNothing(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	user := uuid.New()
	deposit(t, svc, user, 500)

	_, err := svc.Spend(ctx, credits.SpendParams{UserID: user, Amount: 900})
	require.ErrorIs(t, err, credits.ErrInsufficientCredits)

	history, err := svc.History(ctx, user, credits.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, history, 1, "only the deposit exists")

	bal, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(500), bal.AvailableBalance)
}

func TestService_SpendUnknownUser(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	_, err := svc.Spend(context.Background(), credits.SpendParams{UserID: uuid.New(), Amount: 1})
	assert.ErrorIs(t, err, credits.ErrInsufficientCredits)
}

func TestService_ValidationErrors(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Spend(ctx, credits.SpendParams{UserID: uuid.New(), Amount: 0})
	assert.ErrorIs(t, err, credits.ErrInvalidAmount)

	_, err = svc.Deposit(ctx, credits.DepositParams{UserID: uuid.Nil, Amount: 10})
	assert.ErrorIs(t, err, credits.ErrInvalidUserID)

	_, err = svc.Deposit(ctx, credits.DepositParams{UserID: uuid.New(), Amount: 10, Type: credits.TypePurchase})
	assert.ErrorIs(t, err, credits.ErrInvalidType)

	_, err = svc.Refund(ctx, credits.RefundParams{UserID: uuid.New(), Amount: -5})
	assert.ErrorIs(t, err, credits.ErrInvalidAmount)
}

func TestService_DepositOverflowRejected(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	user := uuid.New()
	deposit(t, svc, user, 10)

	_, err := svc.Deposit(ctx, credits.DepositParams{UserID: user, Amount: math.MaxInt64, Description: "bad import"})
	require.ErrorIs(t, err, credits.ErrInvalidAmount)
	require.ErrorIs(t, err, pricing.ErrAmountOverflow)

	bal, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(10), bal.TotalBalance)

	history, err := svc.History(ctx, user, credits.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, history, 1, "rejected deposit writes nothing")
}

func TestService_BonusDeposit(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	tx, err := svc.Deposit(context.Background(), credits.DepositParams{UserID: uuid.New(), Amount: 250, Type: credits.TypeBonus})
	require.NoError(t, err)
	assert.Equal(t, credits.TypeBonus, tx.Type)
}

func TestService_RefundLinkedToDebit(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	user := uuid.New()
	deposit(t, svc, user, 1000)

	debit, err := svc.Spend(ctx, credits.SpendParams{UserID: user, Amount: 900, Reference: "order-1"})
	require.NoError(t, err)

	none, err := svc.FindRefund(ctx, debit.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = svc.Refund(ctx, credits.RefundParams{UserID: user, Amount: 901, OriginalTransactionID: &debit.ID})
	assert.ErrorIs(t, err, credits.ErrRefundExceedsDebit)

	_, err = svc.Refund(ctx, credits.RefundParams{UserID: uuid.New(), Amount: 900, OriginalTransactionID: &debit.ID})
	assert.ErrorIs(t, err, credits.ErrOriginalNotRefundable)

	missing := uuid.New()
	_, err = svc.Refund(ctx, credits.RefundParams{UserID: user, Amount: 10, OriginalTransactionID: &missing})
	assert.ErrorIs(t, err, credits.ErrTransactionNotFound)

	refund, err := svc.Refund(ctx, credits.RefundParams{UserID: user, Amount: 900, Description: "compensation", OriginalTransactionID: &debit.ID})
	require.NoError(t, err)
	assert.Equal(t, credits.TypeRefund, refund.Type)
	assert.Equal(t, int64(900), refund.Amount)
	assert.Equal(t, "order-1", refund.Reference, "reference inherited from the debit")
	require.NotNil(t, refund.OriginalTransactionID)
	assert.Equal(t, debit.ID, *refund.OriginalTransactionID)

	found, err := svc.FindRefund(ctx, debit.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, refund.ID, found.ID)

	_, err = svc.Refund(ctx, credits.RefundParams{UserID: user, Amount: 900, OriginalTransactionID: &debit.ID})
	assert.ErrorIs(t, err, credits.ErrAlreadyRefunded)

	bal, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal.TotalBalance)
}

func TestService_CurrencyMismatch(t *testing.T) {
	t.Parallel()

	store := credits.NewMemoryStore()
	usd := credits.NewService(store)
	eur := credits.NewService(store, credits.WithCurrency("eur"))
	user := uuid.New()

	deposit(t, usd, user, 100)
	_, err := eur.Deposit(context.Background(), credits.DepositParams{UserID: user, Amount: 100})
	assert.ErrorIs(t, err, credits.ErrCurrencyMismatch)
	assert.Equal(t, "EUR", eur.Currency())
}

func TestService_HistoryOrderAndFilter(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var tick atomic.Int64
	svc, _ := newService(t, credits.WithClock(func() time.Time {
		return base.Add(time.Duration(tick.Add(1)) * time.Second)
	}))
	ctx := context.Background()
	user := uuid.New()

	deposit(t, svc, user, 1000)
	_, err := svc.Spend(ctx, credits.SpendParams{UserID: user, Amount: 100})
	require.NoError(t, err)
	_, err = svc.Spend(ctx, credits.SpendParams{UserID: user, Amount: 200})
	require.NoError(t, err)

	all, err := svc.History(ctx, user, credits.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(-200), all[0].Amount)
	assert.Equal(t, credits.TypeDeposit, all[2].Type)

	purchases, err := svc.History(ctx, user, credits.ListOpts{Types: []credits.Type{credits.TypePurchase}, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, int64(-100), purchases[0].Amount)
}

func TestService_ConcurrentSpendOfExactBalance(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	user := uuid.New()
	deposit(t, svc, user, 1000)

	var wg sync.WaitGroup
	var ok, insufficient atomic.Int32
	start := make(chan struct{})
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Spend(ctx, credits.SpendParams{UserID: user, Amount: 1000})
			switch {
			case err == nil:
				ok.Add(1)
			case assert.ErrorIs(t, err, credits.ErrInsufficientCredits):
				insufficient.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(1), insufficient.Load())

	bal, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.AvailableBalance)
}

func TestService_LedgerSumMatchesBalanceUnderLoad(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()
	users := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, u := range users {
		deposit(t, svc, u, 500)
	}

	var wg sync.WaitGroup
	for i := range 60 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u := users[i%len(users)]
			if i%3 == 0 {
				_, _ = svc.Deposit(ctx, credits.DepositParams{UserID: u, Amount: 40})
				return
			}
			_, _ = svc.Spend(ctx, credits.SpendParams{UserID: u, Amount: 70})
		}()
	}
	wg.Wait()

	for _, u := range users {
		r, err := svc.Reconcile(ctx, u)
		require.NoError(t, err)
		assert.True(t, r.Consistent(), "drift %d", r.Drift())

		bal, err := svc.Balance(ctx, u)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, bal.AvailableBalance, int64(0))
		assert.LessOrEqual(t, bal.AvailableBalance, bal.TotalBalance)
	}
}

func TestService_Metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics := credits.NewMetrics(reg)
	svc, _ := newService(t, credits.WithMetrics(metrics))
	ctx := context.Background()
	user := uuid.New()

	deposit(t, svc, user, 300)
	_, err := svc.Spend(ctx, credits.SpendParams{UserID: user, Amount: 500})
	require.ErrorIs(t, err, credits.ErrInsufficientCredits)

	count, err := testutil.GatherAndCount(reg, "credits_transactions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = testutil.GatherAndCount(reg, "credits_rejected_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewService_NilStorePanics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { credits.NewService(nil) })
}
