// Package renewal extends subscriptions by one term, either on the user's
// request inside ManualWindow before expiry or automatically AutoRenewLead
// before expiry for auto-renewing subscriptions.
//
// The price always comes from the subscription's snapshot, so catalog price
// changes never affect existing subscribers. A renewal is
//
//	Spend(reference "renewal:<id>:<period end>") -> ExtendPeriod(old expiry) -> fulfillment
//
// where ExtendPeriod is a compare-and-set on the old expiry, so two
// concurrent renewals of one period extend it once. The loser's debit is
// refunded; a refund that fails is queued as a renewal_refund outbox intent
// handled by RefundHandler.
package renewal
