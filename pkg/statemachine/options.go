package statemachine

import (
	"fmt"
	"time"
)

// Option configures a machine during construction.
type Option[S, E comparable] func(*Machine[S, E]) error

// TransitionOption attaches guards or actions to a transition.
type TransitionOption[S, E comparable] func(*Transition[S, E])

// New creates a machine starting in initial.
func New[S, E comparable](initial S, opts ...Option[S, E]) (*Machine[S, E], error) {
	m := &Machine[S, E]{
		initial:     initial,
		current:     initial,
		transitions: make(map[S]map[E][]Transition[S, E]),
		terminal:    make(map[S]struct{}),
		now:         time.Now,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustNew is New that panics on configuration errors.
func MustNew[S, E comparable](initial S, opts ...Option[S, E]) *Machine[S, E] {
	m, err := New(initial, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create state machine: %v", err))
	}
	return m
}

// WithTransition adds the edge from -> to on event.
func WithTransition[S, E comparable](from, to S, event E, opts ...TransitionOption[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) error {
		t := Transition[S, E]{From: from, To: to, Event: event}
		for _, opt := range opts {
			opt(&t)
		}
		m.addTransition(t)
		return nil
	}
}

// WithTransitionFrom adds the same edge from every state in froms, which is
// how "cancel from anywhere" is declared.
func WithTransitionFrom[S, E comparable](froms []S, to S, event E, opts ...TransitionOption[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) error {
		if len(froms) == 0 {
			return fmt.Errorf("%w: no source states for event %v", ErrInvalidTransition, event)
		}
		for _, from := range froms {
			if err := WithTransition(from, to, event, opts...)(m); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithTerminal marks states from which no event may fire.
func WithTerminal[S, E comparable](states ...S) Option[S, E] {
	return func(m *Machine[S, E]) error {
		for _, s := range states {
			m.terminal[s] = struct{}{}
		}
		return nil
	}
}

// WithObserver registers a callback invoked after each transition.
func WithObserver[S, E comparable](obs Observer[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) error {
		if obs != nil {
			m.observers = append(m.observers, obs)
		}
		return nil
	}
}

// WithClock overrides the time source used for history timestamps.
func WithClock[S, E comparable](now func() time.Time) Option[S, E] {
	return func(m *Machine[S, E]) error {
		if now != nil {
			m.now = now
		}
		return nil
	}
}

func WithGuard[S, E comparable](guard Guard[S, E]) TransitionOption[S, E] {
	return func(t *Transition[S, E]) {
		if guard != nil {
			t.Guards = append(t.Guards, guard)
		}
	}
}

func WithAction[S, E comparable](action Action[S, E]) TransitionOption[S, E] {
	return func(t *Transition[S, E]) {
		if action != nil {
			t.Actions = append(t.Actions, action)
		}
	}
}
