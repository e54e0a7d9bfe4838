package statemachine

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Guard decides at fire time whether a transition may proceed.
type Guard[S, E comparable] func(ctx context.Context, from S, event E) bool

// Action runs before the state changes. An error aborts the transition.
type Action[S, E comparable] func(ctx context.Context, from, to S, event E) error

// Observer is notified after every completed transition.
type Observer[S, E comparable] func(ctx context.Context, step Step[S, E])

// Transition is an edge of the machine.
type Transition[S, E comparable] struct {
	From    S
	To      S
	Event   E
	Guards  []Guard[S, E]  // all must pass
	Actions []Action[S, E] // run in order before the state changes
}

// Step is one entry of the transition history.
type Step[S, E comparable] struct {
	From  S
	To    S
	Event E
	At    time.Time
}

// Machine is a thread-safe finite state machine over comparable state and
// event types. Lookups are [from][event] -> candidate transitions; the first
// candidate whose guards pass wins.
type Machine[S, E comparable] struct {
	mu          sync.RWMutex
	initial     S
	current     S
	transitions map[S]map[E][]Transition[S, E]
	terminal    map[S]struct{}
	history     []Step[S, E]
	observers   []Observer[S, E]
	now         func() time.Time
}

func (m *Machine[S, E]) addTransition(t Transition[S, E]) {
	if m.transitions[t.From] == nil {
		m.transitions[t.From] = make(map[E][]Transition[S, E])
	}
	m.transitions[t.From][t.Event] = append(m.transitions[t.From][t.Event], t)
}

// Current returns the current state.
func (m *Machine[S, E]) Current() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsTerminal reports whether the current state is terminal.
func (m *Machine[S, E]) IsTerminal() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.terminal[m.current]
	return ok
}

// History returns a copy of the completed transitions in order.
func (m *Machine[S, E]) History() []Step[S, E] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.history)
}

// Fire applies event to the current state.
func (m *Machine[S, E]) Fire(ctx context.Context, event E) error {
	m.mu.Lock()

	if _, ok := m.terminal[m.current]; ok {
		from := m.current
		m.mu.Unlock()
		return NewErrNoTransitionAvailable(from, event, ErrTerminalState)
	}

	candidates := m.transitions[m.current][event]
	if len(candidates) == 0 {
		from := m.current
		m.mu.Unlock()
		return NewErrNoTransitionAvailable(from, event, nil)
	}

	chosen := m.pick(ctx, candidates, event)
	if chosen == nil {
		from := m.current
		m.mu.Unlock()
		return NewErrTransitionRejected(from, event)
	}

	for _, action := range chosen.Actions {
		if err := action(ctx, m.current, chosen.To, event); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("action failed: %w", err)
		}
	}

	step := Step[S, E]{From: m.current, To: chosen.To, Event: event, At: m.now()}
	m.current = chosen.To
	m.history = append(m.history, step)
	observers := m.observers
	m.mu.Unlock()

	for _, obs := range observers {
		obs(ctx, step)
	}
	return nil
}

// CanFire reports whether Fire(event) would find a passing transition.
func (m *Machine[S, E]) CanFire(ctx context.Context, event E) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.terminal[m.current]; ok {
		return false
	}
	return m.pick(ctx, m.transitions[m.current][event], event) != nil
}

// Reset returns the machine to its initial state and clears the history.
func (m *Machine[S, E]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.initial
	m.history = nil
}

func (m *Machine[S, E]) pick(ctx context.Context, candidates []Transition[S, E], event E) *Transition[S, E] {
	for i, t := range candidates {
		passed := true
		for _, guard := range t.Guards {
			if !guard(ctx, m.current, event) {
				passed = false
				break
			}
		}
		if passed {
			return &candidates[i]
		}
	}
	return nil
}
