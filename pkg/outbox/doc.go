// Package outbox keeps durable intents for work that must eventually happen,
// such as a compensating refund that failed inline, and a Sweeper that
// executes them.
//
// Producers record an intent, usually inside the transaction of the change
// that needs it, and resolve it when the work completed inline:
//
//	intent, err := box.Record(ctx, "reconcile_order", payload, outbox.After(cfg.GuardDelay))
//	...
//	_ = box.Resolve(ctx, intent.ID)
//
// The Sweeper claims due intents under a lease (FOR UPDATE SKIP LOCKED in
// Postgres, so parallel sweepers never share one), dispatches them to the
// handler registered for their kind and retries failures with exponential
// backoff. Intents that exhaust MaxAttempts, or whose handler returns an
// error wrapping ErrPermanent, become dead and stay for inspection.
//
// Handlers must be idempotent: a lease can expire while a slow handler still
// runs and another sweeper may pick the intent up again.
package outbox
