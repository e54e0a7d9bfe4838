package statemachine_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/seatshare/pkg/statemachine"
)

type state string
type event string

const (
	pending   state = "pending"
	paid      state = "paid"
	shipped   state = "shipped"
	cancelled state = "cancelled"

	pay    event = "pay"
	ship   event = "ship"
	cancel event = "cancel"
)

func newOrderMachine(t *testing.T, opts ...statemachine.Option[state, event]) *statemachine.Machine[state, event] {
	t.Helper()
	base := []statemachine.Option[state, event]{
		statemachine.WithTransition(pending, paid, pay),
		statemachine.WithTransition(paid, shipped, ship),
		statemachine.WithTransitionFrom([]state{pending, paid}, cancelled, cancel),
		statemachine.WithTerminal[state, event](shipped, cancelled),
	}
	m, err := statemachine.New(pending, append(base, opts...)...)
	require.NoError(t, err)
	return m
}

func TestMachine_HappyPath(t *testing.T) {
	t.Parallel()

	m := newOrderMachine(t)
	ctx := context.Background()

	assert.True(t, m.CanFire(ctx, pay))
	assert.False(t, m.CanFire(ctx, ship))

	require.NoError(t, m.Fire(ctx, pay))
	require.NoError(t, m.Fire(ctx, ship))

	assert.Equal(t, shipped, m.Current())
	assert.True(t, m.IsTerminal())

	history := m.History()
	require.Len(t, history, 2)
	assert.Equal(t, pending, history[0].From)
	assert.Equal(t, paid, history[0].To)
	assert.Equal(t, ship, history[1].Event)
}

func TestMachine_CancelFromAnyOpenState(t *testing.T) {
	t.Parallel()

	for _, steps := range [][]event{{}, {pay}} {
		m := newOrderMachine(t)
		for _, e := range steps {
			require.NoError(t, m.Fire(context.Background(), e))
		}
		require.NoError(t, m.Fire(context.Background(), cancel))
		assert.Equal(t, cancelled, m.Current())
	}
}

func TestMachine_TerminalStateRejectsEvents(t *testing.T) {
	t.Parallel()

	m := newOrderMachine(t)
	require.NoError(t, m.Fire(context.Background(), cancel))

	err := m.Fire(context.Background(), pay)
	require.Error(t, err)
	assert.True(t, statemachine.IsNoTransitionAvailableError(err))
	assert.ErrorIs(t, err, statemachine.ErrTerminalState)
	assert.False(t, m.CanFire(context.Background(), cancel))
}

func TestMachine_UnknownEvent(t *testing.T) {
	t.Parallel()

	m := newOrderMachine(t)
	err := m.Fire(context.Background(), ship)

	var noTransition *statemachine.ErrNoTransitionAvailable
	require.ErrorAs(t, err, &noTransition)
	assert.Equal(t, "pending", noTransition.StateName)
	assert.Equal(t, "ship", noTransition.EventName)
	assert.Equal(t, pending, m.Current())
}

func TestMachine_GuardsAndActions(t *testing.T) {
	t.Parallel()

	allowed := false
	var ran []string

	m, err := statemachine.New(pending,
		statemachine.WithTransition(pending, paid, pay,
			statemachine.WithGuard(func(context.Context, state, event) bool { return allowed }),
			statemachine.WithAction(func(_ context.Context, from, to state, _ event) error {
				ran = append(ran, string(from)+"->"+string(to))
				return nil
			}),
		),
		statemachine.WithTransition(paid, shipped, ship,
			statemachine.WithAction(func(context.Context, state, state, event) error {
				return errors.New("carrier down")
			}),
		),
	)
	require.NoError(t, err)
	ctx := context.Background()

	err = m.Fire(ctx, pay)
	assert.True(t, statemachine.IsTransitionRejectedError(err))
	assert.Equal(t, pending, m.Current())

	allowed = true
	require.NoError(t, m.Fire(ctx, pay))
	assert.Equal(t, []string{"pending->paid"}, ran)

	err = m.Fire(ctx, ship)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier down")
	assert.Equal(t, paid, m.Current(), "failed action must not change state")
}

func TestMachine_ObserverAndReset(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var seen []state
	m := newOrderMachine(t, statemachine.WithObserver(func(_ context.Context, s statemachine.Step[state, event]) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s.To)
	}))

	require.NoError(t, m.Fire(context.Background(), pay))
	require.NoError(t, m.Fire(context.Background(), cancel))
	assert.Equal(t, []state{paid, cancelled}, seen)

	m.Reset()
	assert.Equal(t, pending, m.Current())
	assert.Empty(t, m.History())
}

func TestMachine_WithTransitionFromRequiresSources(t *testing.T) {
	t.Parallel()

	_, err := statemachine.New(pending, statemachine.WithTransitionFrom(nil, cancelled, cancel))
	assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)
}

func TestMachine_ConcurrentFire(t *testing.T) {
	t.Parallel()

	m := newOrderMachine(t)
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Fire(context.Background(), pay); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
}
