package purchase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrymomot/seatshare/pkg/analytics"
	"github.com/dmitrymomot/seatshare/pkg/logger"
	"github.com/dmitrymomot/seatshare/pkg/order"
	"github.com/dmitrymomot/seatshare/pkg/subscription"
)

// startExternal hands the order to the payment provider and leaves the saga
// in awaiting_payment.
func (o *Orchestrator) startExternal(ctx context.Context, r *run, req Request, ord *order.Order) (*Receipt, *Failure) {
	var p *Payment
	if err := r.step(ctx, "CreatePayment", func(ctx context.Context) error {
		var err error
		p, err = o.provider.CreatePayment(ctx, PaymentRequest{
			OrderID:     ord.ID,
			UserID:      ord.UserID,
			Method:      ord.PaymentMethod,
			AmountCents: ord.TotalCents,
			Currency:    ord.Currency,
			Description: ord.Items[0].ProductID,
		})
		if err == nil && p == nil {
			err = errors.New("provider returned no payment")
		}
		return err
	}); err != nil {
		return nil, r.fail(ctx, internal("payment could not be started", err))
	}
	if err := r.fire(ctx, EventAwaitPayment); err != nil {
		return nil, r.fail(ctx, asFailure(err))
	}
	r.log.InfoContext(ctx, "awaiting external payment",
		slog.String("method", string(req.PaymentMethod)), slog.String("payment_reference", p.Reference))
	return &Receipt{Order: ord, Payment: p, State: r.state()}, nil
}

// CompleteExternalPayment resumes an awaiting order after the provider
// captured the payment. Calling it again for a completed order returns the
// existing receipt. Subscriptions bought externally do not auto-renew, as
// renewals are paid from credits.
func (o *Orchestrator) CompleteExternalPayment(ctx context.Context, orderID uuid.UUID, providerRef string) (*Receipt, error) {
	started := o.now()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.SagaTimeout)
	defer cancel()
	ctx, span := o.tracer.Start(ctx, "purchase.CompleteExternalPayment",
		trace.WithAttributes(attribute.String("order_id", orderID.String())))
	defer span.End()

	log := o.logger.With(logger.OrderID(orderID), slog.String("payment_reference", providerRef))
	receipt, f := o.completeExternal(ctx, log, orderID, providerRef, started)
	if f != nil {
		span.RecordError(f)
		span.SetStatus(codes.Error, string(f.Code))
		return nil, f
	}
	return receipt, nil
}

func (o *Orchestrator) completeExternal(ctx context.Context, log *slog.Logger, orderID uuid.UUID, providerRef string, started time.Time) (*Receipt, *Failure) {
	if providerRef == "" {
		return nil, invalid("payment reference is required")
	}
	ord, f := o.externalOrder(ctx, orderID)
	if f != nil {
		return nil, f
	}

	if ord.Status != order.StatusPendingPayment {
		sub, err := o.subs.GetByOrder(ctx, ord.ID)
		if err == nil {
			return &Receipt{Order: ord, Subscription: sub, State: StateFinalized}, nil
		}
		if !errors.Is(err, subscription.ErrSubscriptionNotFound) {
			return nil, internal("subscription lookup failed", err)
		}
		log.ErrorContext(ctx, "payment captured for an order that is no longer awaiting it",
			slog.String("status", string(ord.Status)))
		return nil, notAllowed("order is no longer awaiting payment", ErrPaymentNotPending)
	}

	// Recorded before anything can fail so a captured payment is never lost.
	// On error the order stays pending and the provider callback can retry.
	if err := o.orders.UpdatePayment(ctx, ord.ID, providerRef, o.now()); err != nil {
		return nil, internal("payment could not be recorded", err)
	}

	r := o.newRun(StateAwaitingPayment, log.With(logger.UserID(ord.UserID)))
	r.orderID = ord.ID
	if ord.CouponID != nil {
		r.addCompensation("void_coupon", func(ctx context.Context, _ string) error {
			return o.coupons.VoidRedemptionForOrder(ctx, ord.ID)
		})
	}
	r.addCompensation("cancel_order", func(ctx context.Context, reason string) error {
		return o.orders.UpdateStatus(ctx, ord.ID, order.StatusCancelled, reason)
	})

	if err := r.fire(ctx, EventCapturePayment); err != nil {
		return nil, r.fail(ctx, asFailure(err))
	}
	sub, f := o.createSubscription(ctx, r, ord, snapshotOf(ord), false)
	if f != nil {
		f = r.fail(ctx, f)
		r.log.ErrorContext(ctx, "external payment captured without a subscription, provider refund required")
		o.metrics.saga(r.state(), f.Code, o.now().Sub(started))
		return nil, f
	}
	o.finalize(ctx, r, ord, providerRef)
	o.metrics.saga(r.state(), "", o.now().Sub(started))

	o.emit(ctx, analytics.Event{
		Name:   analytics.EventPurchaseCompleted,
		UserID: ord.UserID,
		Properties: map[string]any{
			"order_id":        ord.ID.String(),
			"subscription_id": sub.ID.String(),
			"product_id":      sub.ProductID,
			"term_months":     sub.Snapshot.TermMonths,
			"total_cents":     ord.TotalCents,
			"currency":        ord.Currency,
			"coupon":          ord.CouponID != nil,
			"payment_method":  string(ord.PaymentMethod),
		},
	})
	return &Receipt{Order: ord, Subscription: sub, State: r.state()}, nil
}

// FailExternalPayment cancels an awaiting order the provider could not
// charge and frees its coupon slot. Failing an already cancelled order is
// a no-op.
func (o *Orchestrator) FailExternalPayment(ctx context.Context, orderID uuid.UUID, reason string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.SagaTimeout)
	defer cancel()
	ctx, span := o.tracer.Start(ctx, "purchase.FailExternalPayment",
		trace.WithAttributes(attribute.String("order_id", orderID.String())))
	defer span.End()

	ord, f := o.externalOrder(ctx, orderID)
	if f != nil {
		return f
	}
	switch ord.Status {
	case order.StatusCancelled:
		return nil
	case order.StatusPendingPayment:
	default:
		return notAllowed("order is no longer awaiting payment", ErrPaymentNotPending)
	}

	if reason == "" {
		reason = "payment_failed"
	}
	log := o.logger.With(logger.OrderID(ord.ID), logger.UserID(ord.UserID))
	err := errors.Join(
		o.orders.UpdateStatus(ctx, ord.ID, order.StatusCancelled, reason),
		o.coupons.VoidRedemptionForOrder(ctx, ord.ID),
	)
	if err != nil {
		span.RecordError(err)
		log.ErrorContext(ctx, "external payment failure could not be applied", logger.Error(err))
		o.enqueueReconcile(ctx, ord.ID, log)
		return internal("order could not be cancelled", err)
	}
	log.InfoContext(ctx, "external payment failed", logger.Reason(reason))
	o.emit(ctx, analytics.Event{
		Name:   analytics.EventPurchaseFailed,
		UserID: ord.UserID,
		Properties: map[string]any{
			"order_id":       ord.ID.String(),
			"code":           reason,
			"payment_method": string(ord.PaymentMethod),
		},
	})
	return nil
}

func (o *Orchestrator) externalOrder(ctx context.Context, orderID uuid.UUID) (*order.Order, *Failure) {
	ord, err := o.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return nil, &Failure{Code: CodeInvalidRequest, Kind: KindValidation, Message: "unknown order", Cause: err}
		}
		return nil, internal("order lookup failed", err)
	}
	if !ord.PaymentMethod.IsExternal() {
		return nil, &Failure{Code: CodeInvalidRequest, Kind: KindValidation, Message: "order is not paid externally", Cause: ErrPaymentNotPending}
	}
	if len(ord.Items) == 0 {
		return nil, internal("order has no items", order.ErrInvalidOrder)
	}
	return ord, nil
}

// snapshotOf rebuilds the purchase snapshot frozen on the order item.
func snapshotOf(ord *order.Order) subscription.Snapshot {
	it := ord.Items[0]
	return subscription.Snapshot{
		BasePriceCents:  it.BasePriceCents,
		Currency:        ord.Currency,
		TermMonths:      it.TermMonths,
		DiscountPercent: it.TermDiscountPercent,
	}
}
