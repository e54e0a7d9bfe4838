package renewal

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
	"github.com/dmitrymomot/seatshare/pkg/credits"
	"github.com/dmitrymomot/seatshare/pkg/logger"
	"github.com/dmitrymomot/seatshare/pkg/outbox"
	"github.com/dmitrymomot/seatshare/pkg/subscription"
)

const tracerName = "github.com/dmitrymomot/seatshare/pkg/renewal"

// Worker renews subscriptions from their purchase snapshot.
type Worker struct {
	ledger  Ledger
	subs    subscription.Store
	intents Intents

	cfg       Config
	fulfiller Fulfiller
	emitter   analytics.Emitter
	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

// New builds a Worker. Zero config fields fall back to DefaultConfig.
func New(deps Deps, opts ...Option) (*Worker, error) {
	var missing []string
	if deps.Ledger == nil {
		missing = append(missing, "ledger")
	}
	if deps.Subscriptions == nil {
		missing = append(missing, "subscriptions")
	}
	if deps.Intents == nil {
		missing = append(missing, "intents")
	}
	if len(missing) > 0 {
		return nil, errors.Join(ErrMissingDependency, errors.New(strings.Join(missing, ", ")))
	}

	w := &Worker{
		ledger:  deps.Ledger,
		subs:    deps.Subscriptions,
		intents: deps.Intents,
		cfg:     DefaultConfig(),
		emitter: analytics.Noop{},
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.cfg = w.cfg.withDefaults()
	w.logger = w.logger.With(logger.Component("renewal"))
	return w, nil
}

// RenewManually renews one term of the user's active subscription. It is
// allowed from ManualWindow before expiry up to the expiry instant; an
// expired subscription has to be bought again.
func (w *Worker) RenewManually(ctx context.Context, userID, subscriptionID uuid.UUID) (*Result, error) {
	sub, err := w.subs.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, ErrNotOwner
	}
	if !sub.IsActive() {
		return nil, ErrNotActive
	}
	left := sub.ExpiresAt.Sub(w.now())
	if left < 0 || left > w.cfg.ManualWindow {
		return nil, ErrOutsideRenewalWindow
	}
	return w.renew(ctx, sub, ModeManual)
}

// RenewDue first expires every subscription that lapsed and then renews
// auto-renewing subscriptions expiring within AutoRenewLead. A subscription
// whose renewal keeps failing is retried each pass until it lapses, and a
// lapsed subscription is never charged for a period that already ended.
func (w *Worker) RenewDue(ctx context.Context) (Stats, error) {
	now := w.now()
	expired, err := w.subs.ExpireLapsed(ctx, now)
	if err != nil {
		return Stats{}, err
	}
	w.metrics.lapsed(expired)
	stats := Stats{Expired: expired}

	due, err := w.subs.ListDueForRenewal(ctx, now.Add(w.cfg.AutoRenewLead), w.cfg.BatchSize)
	if err != nil {
		return stats, err
	}
	for i := range due {
		if ctx.Err() != nil {
			break
		}
		// Listed rows may lapse between the two queries.
		if due[i].IsLapsedAt(w.now()) {
			continue
		}
		stats.Due++
		if _, err := w.renew(ctx, &due[i], ModeAuto); err != nil {
			stats.Failed++
			continue
		}
		stats.Renewed++
	}

	if stats.Due > 0 || stats.Expired > 0 {
		w.logger.InfoContext(ctx, "renewal pass finished",
			slog.Int("due", stats.Due), slog.Int("renewed", stats.Renewed),
			slog.Int("failed", stats.Failed), slog.Int("expired", stats.Expired))
	}
	return stats, nil
}

// Run renews immediately and then every Interval until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "renewal worker started", slog.Duration("interval", w.cfg.Interval))

	if _, err := w.RenewDue(ctx); err != nil && ctx.Err() == nil {
		w.logger.ErrorContext(ctx, "renewal pass failed", logger.Error(err))
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(context.WithoutCancel(ctx), "renewal worker stopped")
			return nil
		case <-ticker.C:
			if _, err := w.RenewDue(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "renewal pass failed", logger.Error(err))
			}
		}
	}
}

// Reference is the ledger reference of the renewal debit for the period
// ending at periodEnd. It is stable across retries of the same period.
func Reference(subscriptionID uuid.UUID, periodEnd time.Time) string {
	return fmt.Sprintf("renewal:%s:%s", subscriptionID, periodEnd.UTC().Format(time.RFC3339))
}

// renew charges one term and extends the period with a compare-and-set on
// the old expiry. A charge whose extension failed is refunded, through the
// outbox when the refund fails too.
func (w *Worker) renew(ctx context.Context, sub *subscription.Subscription, mode Mode) (_ *Result, err error) {
	ctx, span := w.tracer.Start(ctx, "renewal.Renew", trace.WithAttributes(
		attribute.String("subscription_id", sub.ID.String()),
		attribute.String("mode", string(mode)),
	))
	log := w.logger.With(logger.SubscriptionID(sub.ID), logger.UserID(sub.UserID), slog.String("mode", string(mode)))
	defer func() {
		result := "renewed"
		if err != nil {
			result = "failed"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			w.emit(ctx, analytics.Event{
				Name:   analytics.EventRenewalFailed,
				UserID: sub.UserID,
				Properties: map[string]any{
					"subscription_id": sub.ID.String(),
					"product_id":      sub.ProductID,
					"mode":            string(mode),
					"error":           err.Error(),
				},
			})
		}
		w.metrics.attempt(mode, result)
		span.End()
	}()

	price, err := sub.Snapshot.TermPrice()
	if err != nil {
		return nil, errors.Join(ErrPaymentFailed, err)
	}
	if price.TotalPriceCents > 0 && sub.Snapshot.Currency != w.ledger.Currency() {
		return nil, errors.Join(ErrPaymentFailed, credits.ErrCurrencyMismatch)
	}

	periodEnd := sub.ExpiresAt
	reference := Reference(sub.ID, periodEnd)
	check := RefundPayload{
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		Reference:      reference,
		PeriodEnd:      periodEnd,
	}
	// The guard settles the period if this process dies between the debit
	// and the extension.
	var guard uuid.UUID
	if price.TotalPriceCents > 0 {
		i, err := w.intents.Record(ctx, KindRenewalRefund, check, outbox.After(w.cfg.GuardDelay))
		if err != nil {
			return nil, errors.Join(ErrPaymentFailed, err)
		}
		guard = i.ID
	}

	tx, err := w.charge(ctx, sub, price.TotalPriceCents, reference)
	if err != nil {
		if errors.Is(err, credits.ErrInsufficientCredits) {
			log.InfoContext(ctx, "renewal not paid, insufficient credits", logger.AmountCents(price.TotalPriceCents))
			w.resolve(ctx, log, guard)
		} else {
			log.ErrorContext(ctx, "renewal charge failed", logger.Error(err))
		}
		return nil, errors.Join(ErrPaymentFailed, err)
	}

	updated, err := w.subs.ExtendPeriod(ctx, sub.ID, periodEnd, sub.NextPeriodEnd(), w.now())
	if err != nil {
		log.WarnContext(ctx, "renewal period not extended", logger.Error(err))
		if tx == nil || w.undo(ctx, log, tx, check) {
			w.resolve(ctx, log, guard)
		}
		return nil, errors.Join(ErrExtendFailed, err)
	}
	w.resolve(ctx, log, guard)

	if w.fulfiller != nil {
		if ferr := w.fulfiller.ScheduleFulfillment(ctx, updated); ferr != nil {
			log.WarnContext(ctx, "renewal fulfillment not scheduled", logger.Error(ferr))
		}
	}

	log.InfoContext(ctx, "subscription renewed",
		logger.AmountCents(price.TotalPriceCents), slog.Time("expires_at", updated.ExpiresAt))
	w.emit(ctx, analytics.Event{
		Name:   analytics.EventRenewalCompleted,
		UserID: sub.UserID,
		Properties: map[string]any{
			"subscription_id": sub.ID.String(),
			"product_id":      sub.ProductID,
			"mode":            string(mode),
			"amount_cents":    price.TotalPriceCents,
			"currency":        sub.Snapshot.Currency,
			"term_months":     sub.Snapshot.TermMonths,
			"renewal_count":   updated.RenewalCount,
		},
	})
	return &Result{Subscription: updated, Transaction: tx}, nil
}

// charge debits amount under reference. Every attempt writes its own
// debit; the period's renewal_refund guard settles any surplus.
func (w *Worker) charge(ctx context.Context, sub *subscription.Subscription, amount int64, reference string) (*credits.Transaction, error) {
	if amount == 0 {
		return nil, nil
	}
	return w.ledger.Spend(ctx, credits.SpendParams{
		UserID:      sub.UserID,
		Amount:      amount,
		Description: fmt.Sprintf("Renewal of %s, %d months", sub.ProductID, sub.Snapshot.TermMonths),
		Reference:   reference,
		Metadata: credits.Metadata{
			"subscription_id":  sub.ID.String(),
			"product_id":       sub.ProductID,
			"term_months":      sub.Snapshot.TermMonths,
			"base_price_cents": sub.Snapshot.BasePriceCents,
			"discount_percent": sub.Snapshot.DiscountPercent,
			"period_end":       sub.ExpiresAt.UTC().Format(time.RFC3339),
		},
	})
}

// undo refunds the debit of a renewal that lost the extension. When the
// refund fails the period check is queued to run now. It reports whether
// the refund went through.
func (w *Worker) undo(ctx context.Context, log *slog.Logger, tx *credits.Transaction, check RefundPayload) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), undoTimeout)
	defer cancel()

	err := w.refundDebit(ctx, tx)
	if err == nil {
		return true
	}
	log.ErrorContext(ctx, "renewal refund failed, queueing retry", logger.TransactionID(tx.ID), logger.Error(err))
	i, err := w.intents.Record(ctx, KindRenewalRefund, check)
	if err != nil {
		log.ErrorContext(ctx, "renewal refund intent could not be recorded", logger.TransactionID(tx.ID), logger.Error(err))
		return false
	}
	log.WarnContext(ctx, "renewal refund queued", logger.IntentID(i.ID))
	return false
}

func (w *Worker) resolve(ctx context.Context, log *slog.Logger, guard uuid.UUID) {
	if guard == uuid.Nil {
		return
	}
	if err := w.intents.Resolve(ctx, guard); err != nil {
		log.WarnContext(ctx, "renewal guard not resolved, it will run as a no-op", logger.IntentID(guard), logger.Error(err))
	}
}

func (w *Worker) emit(ctx context.Context, e analytics.Event) {
	e.OccurredAt = w.now().UTC()
	analytics.Emit(ctx, w.emitter, w.logger, e)
}
