// Package purchase runs the purchase saga: it checks eligibility, creates
// the order (reserving a coupon slot in the same transaction), debits
// credits or hands off to a payment provider, creates the subscription and
// finalizes.
//
// Every completed step registers its undo. On failure the undo steps run
// newest first on a fresh deadline:
//
//	refund_credits -> cancel_order -> void_coupon
//
// Each order gets a reconcile_order outbox intent due after GuardDelay. A
// successful saga resolves it; if the process dies mid-saga the sweeper runs
// Reconcile, which refunds unrefunded debits and cancels the order, or
// settles it when the subscription exists. Failed undo queues an immediate
// reconcile as well.
//
// Purchase detaches from the caller's cancellation and is bounded by
// SagaTimeout, so a submitted purchase always ends in finalized, awaiting
// payment or cancelled. Errors are *Failure values with a stable Code:
//
//	if purchase.CodeOf(err) == purchase.CodeInsufficientCredits { ... }
package purchase
