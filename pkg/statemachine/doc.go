// Package statemachine implements a small generic finite state machine.
//
// States and events are any comparable types, usually string-based enums.
// Transitions can carry guards and actions, states can be marked terminal,
// and every completed transition is appended to a history and reported to
// observers. The purchase saga uses it to make its step order explicit:
//
//	m := statemachine.MustNew[State, Event](Validating,
//		statemachine.WithTransition[State, Event](Validating, OrderCreated, CreateOrder),
//		statemachine.WithTransitionFrom[State, Event](open, Cancelled, Cancel),
//		statemachine.WithTerminal[State, Event](Finalized, Cancelled),
//	)
//	if err := m.Fire(ctx, CreateOrder); err != nil { ... }
package statemachine
