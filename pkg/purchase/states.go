package purchase

import "github.com/dmitrymomot/seatshare/pkg/statemachine"

// State is a step of the purchase saga.
type State string

const (
	StateValidating          State = "validating"
	StateCouponReserved      State = "coupon_reserved"
	StateOrderCreated        State = "order_created"
	StateAwaitingPayment     State = "awaiting_payment"
	StatePaymentCaptured     State = "payment_captured"
	StateCreditsDebited      State = "credits_debited"
	StateSubscriptionCreated State = "subscription_created"
	StateFinalized           State = "finalized"
	StateCancelled           State = "cancelled"
)

// Event moves the saga between states.
type Event string

const (
	EventReserveCoupon      Event = "reserve_coupon"
	EventCreateOrder        Event = "create_order"
	EventDebit              Event = "debit"
	EventAwaitPayment       Event = "await_payment"
	EventCapturePayment     Event = "capture_payment"
	EventCreateSubscription Event = "create_subscription"
	EventFinalize           Event = "finalize"
	EventCancel             Event = "cancel"
)

var cancellable = []State{
	StateValidating,
	StateCouponReserved,
	StateOrderCreated,
	StateAwaitingPayment,
	StatePaymentCaptured,
	StateCreditsDebited,
	StateSubscriptionCreated,
}

// newMachine builds the saga transition table starting at initial.
//
//	validating -> (coupon_reserved) -> order_created -> credits_debited -> subscription_created -> finalized
//	order_created -> awaiting_payment -> payment_captured -> subscription_created
//	any non-terminal -> cancelled
func newMachine(initial State, observer statemachine.Observer[State, Event]) *statemachine.Machine[State, Event] {
	return statemachine.MustNew(initial,
		statemachine.WithTransition(StateValidating, StateCouponReserved, EventReserveCoupon),
		statemachine.WithTransition(StateValidating, StateOrderCreated, EventCreateOrder),
		statemachine.WithTransition(StateCouponReserved, StateOrderCreated, EventCreateOrder),
		statemachine.WithTransition(StateOrderCreated, StateCreditsDebited, EventDebit),
		statemachine.WithTransition(StateOrderCreated, StateAwaitingPayment, EventAwaitPayment),
		statemachine.WithTransition(StateAwaitingPayment, StatePaymentCaptured, EventCapturePayment),
		statemachine.WithTransition(StateCreditsDebited, StateSubscriptionCreated, EventCreateSubscription),
		statemachine.WithTransition(StatePaymentCaptured, StateSubscriptionCreated, EventCreateSubscription),
		statemachine.WithTransition(StateSubscriptionCreated, StateFinalized, EventFinalize),
		statemachine.WithTransitionFrom(cancellable, StateCancelled, EventCancel),
		statemachine.WithTerminal[State, Event](StateFinalized, StateCancelled),
		statemachine.WithObserver(observer),
	)
}
