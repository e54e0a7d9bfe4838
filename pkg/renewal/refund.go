package renewal

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/seatshare/pkg/credits"
	"github.com/dmitrymomot/seatshare/pkg/logger"
	"github.com/dmitrymomot/seatshare/pkg/outbox"
)

// KindRenewalRefund is the outbox intent kind handled by RefundHandler.
const KindRenewalRefund = "renewal_refund"

const undoTimeout = 15 * time.Second

// RefundPayload names one renewal period to settle.
type RefundPayload struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	UserID         uuid.UUID `json:"user_id"`
	Reference      string    `json:"reference"`
	PeriodEnd      time.Time `json:"period_end"`
}

// RefundHandler settles renewal periods for the outbox sweeper. See SettlePeriod.
func (w *Worker) RefundHandler() outbox.Handler {
	return outbox.NewHandler(KindRenewalRefund, func(ctx context.Context, p RefundPayload) error {
		if p.SubscriptionID == uuid.Nil || p.UserID == uuid.Nil || p.Reference == "" {
			return errors.Join(outbox.ErrPermanent, errors.New("renewal refund payload is incomplete"))
		}
		_, err := w.SettlePeriod(ctx, p)
		return err
	})
}

// SettlePeriod makes the debits of one renewal period match its outcome:
// if the period was extended the oldest unrefunded debit is kept, and every
// other unrefunded debit under the period's reference is refunded. It is
// safe to repeat and returns how many refunds it issued.
func (w *Worker) SettlePeriod(ctx context.Context, p RefundPayload) (int, error) {
	sub, err := w.subs.Get(ctx, p.SubscriptionID)
	if err != nil {
		return 0, err
	}
	txs, err := w.ledger.FindByReference(ctx, p.Reference)
	if err != nil {
		return 0, err
	}

	var open []credits.Transaction
	for _, tx := range txs {
		if tx.Type != credits.TypePurchase || tx.UserID != p.UserID {
			continue
		}
		refund, err := w.ledger.FindRefund(ctx, tx.ID)
		if err != nil {
			return 0, err
		}
		if refund == nil {
			open = append(open, tx)
		}
	}
	slices.SortFunc(open, func(a, b credits.Transaction) int { return a.CreatedAt.Compare(b.CreatedAt) })

	if sub.ExpiresAt.After(p.PeriodEnd) && len(open) > 0 {
		open = open[1:]
	}
	refunded := 0
	for i := range open {
		if err := w.refundDebit(ctx, &open[i]); err != nil {
			return refunded, err
		}
		refunded++
	}
	if refunded > 0 {
		w.logger.InfoContext(ctx, "renewal period settled",
			logger.SubscriptionID(sub.ID), slog.String("reference", p.Reference), slog.Int("refunds", refunded))
	}
	return refunded, nil
}

// refundDebit returns a renewal debit in full. An already refunded debit
// counts as done.
func (w *Worker) refundDebit(ctx context.Context, tx *credits.Transaction) error {
	original := tx.ID
	_, err := w.ledger.Refund(ctx, credits.RefundParams{
		UserID:                tx.UserID,
		Amount:                -tx.Amount,
		Description:           "Refund: renewal not applied",
		Reference:             tx.Reference,
		OriginalTransactionID: &original,
	})
	switch {
	case err == nil, errors.Is(err, credits.ErrAlreadyRefunded):
		return nil
	case errors.Is(err, credits.ErrOriginalNotRefundable), errors.Is(err, credits.ErrRefundExceedsDebit):
		return errors.Join(outbox.ErrPermanent, err)
	}
	return err
}
