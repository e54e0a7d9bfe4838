package outbox_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/seatshare/internal/testdb"
	"github.com/dmitrymomot/seatshare/pkg/outbox"
)

func TestPGStore_ClaimIsExclusive(t *testing.T) {
	pool := testdb.Open(t)
	store := outbox.NewPGStore(pool)
	box, err := outbox.New(store, outbox.DefaultConfig())
	require.NoError(t, err)
	ctx := context.Background()

	kind := "test_" + uuid.NewString()[:8]
	past := time.Now().Add(-time.Hour)
	for range 10 {
		_, err := box.Record(ctx, kind, refundPayload{Amount: 1}, outbox.At(past))
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen = map[uuid.UUID]int{}
		wg   sync.WaitGroup
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.Claim(ctx, uuid.New(), time.Now(), time.Minute, 1000)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, i := range claimed {
				if i.Kind == kind {
					seen[i.ID]++
				}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 10)
	for id, n := range seen {
		assert.Equal(t, 1, n, "intent %s claimed more than once", id)
	}
}

func TestPGStore_Lifecycle(t *testing.T) {
	pool := testdb.Open(t)
	store := outbox.NewPGStore(pool)
	box, err := outbox.New(store, outbox.DefaultConfig())
	require.NoError(t, err)
	ctx := context.Background()

	intent, err := box.Record(ctx, "refund", refundPayload{Amount: 900}, outbox.After(time.Hour))
	require.NoError(t, err)

	got, err := store.Get(ctx, intent.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"order_id":"00000000-0000-0000-0000-000000000000","amount":900}`, string(got.Payload))

	require.NoError(t, box.Resolve(ctx, intent.ID))
	require.NoError(t, box.Resolve(ctx, intent.ID))
	got, err = store.Get(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, outbox.StatusDone, got.Status)

	assert.ErrorIs(t, store.Bury(ctx, intent.ID, uuid.New(), "x"), outbox.ErrLeaseLost)
	assert.ErrorIs(t, box.Resolve(ctx, uuid.New()), outbox.ErrIntentNotFound)
}
