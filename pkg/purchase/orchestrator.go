package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrymomot/seatshare/pkg/analytics"
	"github.com/dmitrymomot/seatshare/pkg/coupon"
	"github.com/dmitrymomot/seatshare/pkg/credits"
	"github.com/dmitrymomot/seatshare/pkg/logger"
	"github.com/dmitrymomot/seatshare/pkg/order"
	"github.com/dmitrymomot/seatshare/pkg/outbox"
	"github.com/dmitrymomot/seatshare/pkg/subscription"
)

const tracerName = "github.com/dmitrymomot/seatshare/pkg/purchase"

var ErrMissingDependency = errors.New("purchase: missing dependency")

// Orchestrator runs purchase sagas.
type Orchestrator struct {
	ledger  Ledger
	coupons Coupons
	orders  order.Store
	subs    subscription.Store
	catalog Catalog
	intents Intents

	cfg      Config
	provider PaymentProvider
	emitter  analytics.Emitter
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
	now      func() time.Time
}

// New builds an Orchestrator. Every field of deps is required.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	var missing []string
	if deps.Ledger == nil {
		missing = append(missing, "ledger")
	}
	if deps.Coupons == nil {
		missing = append(missing, "coupons")
	}
	if deps.Orders == nil {
		missing = append(missing, "orders")
	}
	if deps.Subscriptions == nil {
		missing = append(missing, "subscriptions")
	}
	if deps.Catalog == nil {
		missing = append(missing, "catalog")
	}
	if deps.Intents == nil {
		missing = append(missing, "intents")
	}
	if len(missing) > 0 {
		return nil, errors.Join(ErrMissingDependency, errors.New(strings.Join(missing, ", ")))
	}

	o := &Orchestrator{
		ledger:  deps.Ledger,
		coupons: deps.Coupons,
		orders:  deps.Orders,
		subs:    deps.Subscriptions,
		catalog: deps.Catalog,
		intents: deps.Intents,
		cfg:     DefaultConfig(),
		emitter: analytics.Noop{},
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	o.logger = o.logger.With(logger.Component("purchase"))
	return o, nil
}

// Purchase runs the saga for req. Once started it runs to success or
// compensation even if ctx is cancelled; SagaTimeout bounds it instead.
// The returned error is always a *Failure.
func (o *Orchestrator) Purchase(ctx context.Context, req Request) (*Receipt, error) {
	started := o.now()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.SagaTimeout)
	defer cancel()

	ctx, span := o.tracer.Start(ctx, "purchase.Purchase", trace.WithAttributes(
		attribute.String("user_id", req.UserID.String()),
		attribute.String("product_id", req.ProductID),
		attribute.Int("term_months", req.TermMonths),
		attribute.String("payment_method", string(req.PaymentMethod)),
	))
	defer span.End()

	log := o.logger.With(logger.UserID(req.UserID), logger.ProductID(req.ProductID))
	r := o.newRun(StateValidating, log)

	receipt, f := o.purchase(ctx, r, req)
	o.metrics.saga(r.state(), codeOf(f), o.now().Sub(started))
	if f != nil {
		span.RecordError(f)
		span.SetStatus(codes.Error, string(f.Code))
		o.logFailure(ctx, log, r, f)
		o.emit(ctx, analytics.Event{
			Name:   analytics.EventPurchaseFailed,
			UserID: req.UserID,
			Properties: map[string]any{
				"product_id":  req.ProductID,
				"term_months": req.TermMonths,
				"code":        string(f.Code),
				"kind":        string(f.Kind),
				"order_id":    r.orderID.String(),
			},
		})
		return nil, f
	}
	span.SetAttributes(attribute.String("order_id", receipt.Order.ID.String()), attribute.String("state", string(receipt.State)))
	return receipt, nil
}

// Quote prices req and checks eligibility without writing anything.
// The returned error is always a *Failure.
func (o *Orchestrator) Quote(ctx context.Context, req Request) (*Quote, error) {
	req, f := o.normalize(req)
	if f != nil {
		return nil, f
	}
	q, f := o.quote(ctx, req)
	if f != nil {
		return nil, f
	}
	return q, nil
}

func (o *Orchestrator) purchase(ctx context.Context, r *run, req Request) (*Receipt, *Failure) {
	req, f := o.normalize(req)
	if f != nil {
		return nil, r.fail(ctx, f)
	}

	var q *Quote
	if err := r.step(ctx, "Validate", func(ctx context.Context) error {
		var f *Failure
		if q, f = o.quote(ctx, req); f != nil {
			return f
		}
		return nil
	}); err != nil {
		return nil, r.fail(ctx, asFailure(err))
	}

	ord := newOrder(req, q)
	r.log = r.log.With(logger.OrderID(ord.ID))
	if err := r.step(ctx, "CreateOrder", func(ctx context.Context) error {
		return o.createOrder(ctx, r, req, q, ord)
	}, attribute.String("order_id", ord.ID.String())); err != nil {
		return nil, r.fail(ctx, asFailure(err))
	}

	if req.PaymentMethod.IsExternal() {
		return o.startExternal(ctx, r, req, ord)
	}

	var debit *credits.Transaction
	if err := r.step(ctx, "DebitCredits", func(ctx context.Context) error {
		var err error
		debit, err = o.debit(ctx, r, req, q, ord)
		return err
	}, attribute.Int64("amount_cents", ord.TotalCents)); err != nil {
		return nil, r.fail(ctx, asFailure(err))
	}

	reference := ""
	if debit != nil {
		reference = debit.ID.String()
	}
	sub, f := o.createSubscription(ctx, r, ord, q.Snapshot, req.AutoRenew)
	if f != nil {
		return nil, r.fail(ctx, f)
	}
	o.finalize(ctx, r, ord, reference)

	o.emit(ctx, analytics.Event{
		Name:   analytics.EventPurchaseCompleted,
		UserID: ord.UserID,
		Properties: map[string]any{
			"order_id":        ord.ID.String(),
			"subscription_id": sub.ID.String(),
			"product_id":      q.Product.ID,
			"term_months":     req.TermMonths,
			"total_cents":     ord.TotalCents,
			"currency":        ord.Currency,
			"coupon":          q.Coupon != nil,
			"payment_method":  string(ord.PaymentMethod),
		},
	})
	return &Receipt{Order: ord, Subscription: sub, Transaction: debit, State: r.state()}, nil
}

// normalize applies defaults and rejects malformed requests.
func (o *Orchestrator) normalize(req Request) (Request, *Failure) {
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.CouponCode = strings.TrimSpace(req.CouponCode)
	if req.PaymentMethod == "" {
		req.PaymentMethod = order.PaymentCredits
	}
	switch {
	case req.UserID == uuid.Nil:
		return req, invalid("user id is required")
	case req.ProductID == "":
		return req, invalid("product id is required")
	case req.TermMonths < 1:
		return req, invalid("term must be at least one month")
	case !req.PaymentMethod.Valid():
		return req, invalid("unknown payment method")
	case req.PaymentMethod.IsExternal() && o.provider == nil:
		return req, notAllowed("payment method is not available", ErrNoPaymentProvider)
	}
	return req, nil
}

// quote re-checks eligibility against current state and prices the request.
func (o *Orchestrator) quote(ctx context.Context, req Request) (*Quote, *Failure) {
	p, err := o.catalog.Product(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, subscription.ErrProductNotFound) {
			return nil, notAllowed("product is not available", err)
		}
		return nil, internal("catalog lookup failed", err)
	}
	if !p.Purchasable {
		return nil, notAllowed("product is not available", nil)
	}

	active, err := o.subs.HasActive(ctx, req.UserID, p.ID)
	if err != nil {
		return nil, internal("subscription lookup failed", err)
	}
	if active {
		return nil, notAllowed("an active subscription for this product already exists", nil)
	}

	term, err := p.Quote(req.TermMonths)
	if err != nil {
		if errors.Is(err, subscription.ErrTermNotOffered) {
			return nil, &Failure{Code: CodeTermUnavailable, Kind: KindEligibility, Message: "term is not offered for this product", Cause: err}
		}
		return nil, internal("pricing failed", err)
	}
	snap, err := p.Snapshot(req.TermMonths)
	if err != nil {
		return nil, internal("pricing failed", err)
	}

	if req.PaymentMethod == order.PaymentCredits && p.Currency != o.ledger.Currency() {
		return nil, notAllowed(fmt.Sprintf("product is priced in %s, credits are %s", p.Currency, o.ledger.Currency()), credits.ErrCurrencyMismatch)
	}

	q := &Quote{
		Product:    p,
		Snapshot:   snap,
		Term:       term,
		TotalCents: term.TotalPriceCents,
		Currency:   p.Currency,
	}
	if req.CouponCode != "" {
		v, err := o.coupons.ValidateCouponForOrder(ctx, req.CouponCode, req.UserID,
			coupon.Target{ProductID: p.ID, Category: p.Category}, term.TotalPriceCents, req.TermMonths)
		if err != nil {
			return nil, fromCoupon(err)
		}
		q.Coupon = v.Coupon
		q.CouponDiscountCents = v.DiscountCents
		q.TotalCents -= v.DiscountCents
	}
	return q, nil
}

func newOrder(req Request, q *Quote) *order.Order {
	ord := &order.Order{
		ID:                  uuid.New(),
		UserID:              req.UserID,
		Status:              order.StatusPendingPayment,
		Currency:            q.Currency,
		SubtotalCents:       q.Term.GrossCents,
		TermDiscountCents:   q.Term.DiscountCents,
		CouponDiscountCents: q.CouponDiscountCents,
		TotalCents:          q.TotalCents,
		PaymentMethod:       req.PaymentMethod,
		Items: []order.Item{{
			ProductID:           q.Product.ID,
			TermMonths:          q.Snapshot.TermMonths,
			BasePriceCents:      q.Snapshot.BasePriceCents,
			TermDiscountPercent: q.Snapshot.DiscountPercent,
			TotalCents:          q.Term.TotalPriceCents,
		}},
	}
	if q.Coupon != nil {
		id := q.Coupon.ID
		ord.CouponID = &id
	}
	return ord
}

// createOrder persists the order, reserving the coupon slot in the same
// transaction, then records the crash-recovery guard.
func (o *Orchestrator) createOrder(ctx context.Context, r *run, req Request, q *Quote, ord *order.Order) error {
	if q.Coupon == nil {
		if err := o.orders.CreateWithItems(ctx, ord); err != nil {
			return internal("order could not be created", err)
		}
	} else {
		err := o.orders.CreateWithItemsInTransaction(ctx, ord, func(ctx context.Context) error {
			_, err := o.coupons.ReserveCouponRedemption(ctx, q.Coupon.ID, req.UserID, ord.ID)
			return err
		})
		if err != nil {
			if _, ok := coupon.ReasonOf(err); ok {
				return fromCoupon(err)
			}
			return internal("order could not be created", err)
		}
		if err := r.fire(ctx, EventReserveCoupon); err != nil {
			return err
		}
		r.addCompensation("void_coupon", func(ctx context.Context, _ string) error {
			return o.coupons.VoidRedemptionForOrder(ctx, ord.ID)
		})
	}

	r.orderID = ord.ID
	r.addCompensation("cancel_order", func(ctx context.Context, reason string) error {
		return o.orders.UpdateStatus(ctx, ord.ID, order.StatusCancelled, reason)
	})
	if err := r.fire(ctx, EventCreateOrder); err != nil {
		return err
	}

	delay := o.cfg.GuardDelay
	if ord.PaymentMethod.IsExternal() {
		delay += o.cfg.ExternalPaymentTimeout
	}
	guard, err := o.intents.Record(ctx, KindReconcileOrder, ReconcilePayload{OrderID: ord.ID}, outbox.After(delay))
	if err != nil {
		return internal("reconcile guard could not be recorded", err)
	}
	r.guardID = guard.ID
	return nil
}

// debit spends the order total. A free order moves no credits.
func (o *Orchestrator) debit(ctx context.Context, r *run, req Request, q *Quote, ord *order.Order) (*credits.Transaction, error) {
	var tx *credits.Transaction
	if ord.TotalCents > 0 {
		md := credits.Metadata{
			"order_id":              ord.ID.String(),
			"product_id":            q.Product.ID,
			"term_months":           q.Snapshot.TermMonths,
			"base_price_cents":      q.Snapshot.BasePriceCents,
			"discount_percent":      q.Snapshot.DiscountPercent,
			"coupon_discount_cents": q.CouponDiscountCents,
			"total_cents":           ord.TotalCents,
		}
		if q.Coupon != nil {
			md["coupon_id"] = q.Coupon.ID.String()
		}
		var err error
		tx, err = o.ledger.Spend(ctx, credits.SpendParams{
			UserID:      req.UserID,
			Amount:      ord.TotalCents,
			Description: fmt.Sprintf("%s, %d months", q.Product.Name, q.Snapshot.TermMonths),
			Reference:   ord.ID.String(),
			Metadata:    md,
		})
		if err != nil {
			if errors.Is(err, credits.ErrInsufficientCredits) {
				return nil, &Failure{Code: CodeInsufficientCredits, Kind: KindInsufficientFunds, Message: "not enough credits", Cause: err}
			}
			return nil, internal("credits could not be debited", err)
		}
		r.log = r.log.With(logger.TransactionID(tx.ID))
		r.addCompensation("refund_credits", func(ctx context.Context, reason string) error {
			return o.refund(ctx, tx, reason)
		})
	}
	if err := r.fire(ctx, EventDebit); err != nil {
		return nil, err
	}
	return tx, nil
}

func (o *Orchestrator) createSubscription(ctx context.Context, r *run, ord *order.Order, snap subscription.Snapshot, autoRenew bool) (*subscription.Subscription, *Failure) {
	sub := subscription.New(ord.UserID, ord.ID, ord.Items[0].ProductID, snap, ord.TotalCents, autoRenew, o.now())
	if err := r.step(ctx, "CreateSubscription", func(ctx context.Context) error {
		return o.subs.Create(ctx, sub)
	}); err != nil {
		return nil, &Failure{Code: CodeSubscriptionCreateFailed, Kind: KindInfrastructure, Message: "subscription could not be created", Cause: err}
	}
	if err := r.fire(ctx, EventCreateSubscription); err != nil {
		return nil, asFailure(err)
	}
	return sub, nil
}

// finalize settles a paid order. The subscription already exists, so
// failures here do not fail the purchase; they queue a reconcile instead.
func (o *Orchestrator) finalize(ctx context.Context, r *run, ord *order.Order, reference string) {
	paidAt := o.now().UTC()
	if err := r.step(ctx, "Finalize", func(ctx context.Context) error {
		return o.settle(ctx, ord, reference, paidAt)
	}); err != nil {
		r.log.ErrorContext(ctx, "purchase finalize failed", logger.Error(err))
		o.enqueueReconcile(ctx, ord.ID, r.log)
		return
	}
	ord.Status = order.StatusInProcess
	ord.PaymentReference = reference
	ord.PaidAt = &paidAt

	if r.guardID != uuid.Nil {
		o.resolveGuard(ctx, r.guardID, r.log)
	}
	if err := r.fire(ctx, EventFinalize); err != nil {
		r.log.WarnContext(ctx, "saga finalize transition refused", logger.Error(err))
	}
	r.log.InfoContext(ctx, "purchase completed", logger.AmountCents(ord.TotalCents), logger.SagaState(string(r.state())))
}

// settle records the payment, moves the order to in_process and finalizes
// the coupon slot. Every step is idempotent.
func (o *Orchestrator) settle(ctx context.Context, ord *order.Order, reference string, paidAt time.Time) error {
	if err := o.orders.UpdatePayment(ctx, ord.ID, reference, paidAt); err != nil {
		return err
	}
	if err := o.orders.UpdateStatus(ctx, ord.ID, order.StatusInProcess, ""); err != nil {
		return err
	}
	if ord.CouponID != nil {
		if err := o.coupons.FinalizeRedemptionForOrder(ctx, ord.ID); err != nil {
			return err
		}
	}
	return nil
}

// refund returns a debit in full. A debit that already has its refund is
// treated as done.
func (o *Orchestrator) refund(ctx context.Context, debit *credits.Transaction, reason string) error {
	_, err := o.ledger.Refund(ctx, credits.RefundParams{
		UserID:                debit.UserID,
		Amount:                -debit.Amount,
		Description:           "Refund: " + reason,
		Reference:             debit.Reference,
		OriginalTransactionID: &debit.ID,
		Metadata:              credits.Metadata{"reason": reason},
	})
	if errors.Is(err, credits.ErrAlreadyRefunded) {
		return nil
	}
	return err
}

func (o *Orchestrator) emit(ctx context.Context, e analytics.Event) {
	e.OccurredAt = o.now().UTC()
	analytics.Emit(ctx, o.emitter, o.logger, e)
}

func (o *Orchestrator) logFailure(ctx context.Context, log *slog.Logger, r *run, f *Failure) {
	attrs := []any{
		slog.String("code", string(f.Code)),
		slog.String("kind", string(f.Kind)),
		logger.SagaState(string(r.state())),
	}
	if f.Cause != nil {
		attrs = append(attrs, logger.Error(f.Cause))
	}
	switch f.Kind {
	case KindInfrastructure, KindCompensation:
		log.ErrorContext(ctx, "purchase failed", attrs...)
	default:
		log.InfoContext(ctx, "purchase rejected", attrs...)
	}
}

func asFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return internal("purchase failed", err)
}

func codeOf(f *Failure) Code {
	if f == nil {
		return ""
	}
	return f.Code
}
