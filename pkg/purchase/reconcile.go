package purchase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrymomot/seatshare/pkg/credits"
	"github.com/dmitrymomot/seatshare/pkg/logger"
	"github.com/dmitrymomot/seatshare/pkg/order"
	"github.com/dmitrymomot/seatshare/pkg/outbox"
	"github.com/dmitrymomot/seatshare/pkg/subscription"
)

// KindReconcileOrder is the outbox intent kind handled by ReconcileHandler.
const KindReconcileOrder = "reconcile_order"

// ReconcilePayload is the body of a reconcile_order intent.
type ReconcilePayload struct {
	OrderID uuid.UUID `json:"order_id"`
}

// ReconcileHandler exposes Reconcile to the outbox sweeper.
func (o *Orchestrator) ReconcileHandler() outbox.Handler {
	return outbox.NewHandler(KindReconcileOrder, func(ctx context.Context, p ReconcilePayload) error {
		if p.OrderID == uuid.Nil {
			return errors.Join(outbox.ErrPermanent, errors.New("order id is required"))
		}
		return o.Reconcile(ctx, p.OrderID)
	})
}

// Reconcile brings an order to a consistent state and is safe to repeat.
// An order with a subscription is settled; any other order gets every
// unrefunded debit refunded, is cancelled and has its coupon slot voided.
// An external order still inside its payment window returns
// ErrOrderNotReconcilable so the caller retries later.
func (o *Orchestrator) Reconcile(ctx context.Context, orderID uuid.UUID) (err error) {
	ctx, span := o.tracer.Start(ctx, "purchase.Reconcile",
		trace.WithAttributes(attribute.String("order_id", orderID.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	log := o.logger.With(logger.OrderID(orderID))

	ord, err := o.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			log.DebugContext(ctx, "reconcile skipped, order does not exist")
			return nil
		}
		return err
	}

	sub, err := o.subs.GetByOrder(ctx, orderID)
	switch {
	case err == nil:
		return o.reconcileBought(ctx, log, ord, sub)
	case !errors.Is(err, subscription.ErrSubscriptionNotFound):
		return err
	}

	if ord.Status == order.StatusFulfilled {
		log.ErrorContext(ctx, "fulfilled order has no subscription, manual review required")
		return nil
	}
	if ord.PaymentMethod.IsExternal() && ord.Status == order.StatusPendingPayment &&
		o.now().Before(ord.CreatedAt.Add(o.cfg.ExternalPaymentTimeout)) {
		return ErrOrderNotReconcilable
	}

	refunded, err := o.refundAll(ctx, ord)
	if err != nil {
		return err
	}
	reason := ord.StatusReason
	if reason == "" {
		reason = "reconciled"
	}
	if err := o.orders.UpdateStatus(ctx, ord.ID, order.StatusCancelled, reason); err != nil {
		return err
	}
	if err := o.coupons.VoidRedemptionForOrder(ctx, ord.ID); err != nil {
		return err
	}
	if refunded > 0 || ord.Status != order.StatusCancelled {
		log.InfoContext(ctx, "order reconciled as cancelled", slog.Int("refunds", refunded), logger.Reason(reason))
	}
	return nil
}

// reconcileBought settles an order whose subscription exists.
func (o *Orchestrator) reconcileBought(ctx context.Context, log *slog.Logger, ord *order.Order, sub *subscription.Subscription) error {
	switch ord.Status {
	case order.StatusFulfilled:
		return nil
	case order.StatusCancelled:
		log.ErrorContext(ctx, "cancelled order has a subscription, manual review required",
			logger.SubscriptionID(sub.ID))
		return nil
	}

	reference := ord.PaymentReference
	if reference == "" && !ord.PaymentMethod.IsExternal() {
		debits, err := o.debits(ctx, ord)
		if err != nil {
			return err
		}
		if len(debits) > 0 {
			reference = debits[0].ID.String()
		}
	}
	paidAt := o.now().UTC()
	if ord.PaidAt != nil {
		paidAt = *ord.PaidAt
	}
	if err := o.settle(ctx, ord, reference, paidAt); err != nil {
		return err
	}
	log.InfoContext(ctx, "order reconciled as paid", logger.SubscriptionID(sub.ID))
	return nil
}

// refundAll refunds every debit of the order that has no refund yet and
// returns how many it refunded.
func (o *Orchestrator) refundAll(ctx context.Context, ord *order.Order) (int, error) {
	debits, err := o.debits(ctx, ord)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range debits {
		existing, err := o.ledger.FindRefund(ctx, debits[i].ID)
		if err != nil {
			return n, err
		}
		if existing != nil {
			continue
		}
		if err := o.refund(ctx, &debits[i], "reconciled"); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (o *Orchestrator) debits(ctx context.Context, ord *order.Order) ([]credits.Transaction, error) {
	txs, err := o.ledger.FindByReference(ctx, ord.ID.String())
	if err != nil {
		return nil, err
	}
	out := txs[:0]
	for _, tx := range txs {
		if tx.Type == credits.TypePurchase && tx.UserID == ord.UserID {
			out = append(out, tx)
		}
	}
	return out, nil
}

// enqueueReconcile records an immediately due reconcile intent. Failing to
// record it leaves only the guard, so it is logged loudly.
func (o *Orchestrator) enqueueReconcile(ctx context.Context, orderID uuid.UUID, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	i, err := o.intents.Record(ctx, KindReconcileOrder, ReconcilePayload{OrderID: orderID})
	if err != nil {
		log.ErrorContext(ctx, "reconcile intent could not be recorded", logger.Error(err))
		return
	}
	log.WarnContext(ctx, "reconcile queued", logger.IntentID(i.ID))
}

func (o *Orchestrator) resolveGuard(ctx context.Context, id uuid.UUID, log *slog.Logger) {
	if err := o.intents.Resolve(ctx, id); err != nil {
		log.WarnContext(ctx, "reconcile guard not resolved, it will run as a no-op", logger.IntentID(id), logger.Error(err))
	}
}
