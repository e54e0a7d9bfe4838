package credits

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/seatshare/pkg/logger"
	"github.com/dmitrymomot/seatshare/pkg/pricing"
)

// Service is the credit ledger API used by purchases, renewals and admin tooling.
type Service struct {
	store    Store
	currency string
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time
}

// NewService panics when store is nil.
func NewService(store Store, opts ...ServiceOption) *Service {
	if store == nil {
		panic("credits: store is required")
	}
	s := &Service{
		store:    store,
		currency: pricing.DefaultCurrency,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("credits"))
	return s
}

// Currency returns the ledger currency code.
func (s *Service) Currency() string { return s.currency }

// Spend debits amount from the user's available balance. When the balance
// is short it returns ErrInsufficientCredits and writes nothing.
func (s *Service) Spend(ctx context.Context, p SpendParams) (*Transaction, error) {
	if err := validate(p.UserID, p.Amount); err != nil {
		return nil, err
	}

	tx, _, err := s.store.Apply(ctx, p.UserID, s.currency, func(cur Balance) (*Transaction, error) {
		if p.Amount > cur.AvailableBalance {
			return nil, ErrInsufficientCredits
		}
		return s.entry(cur, TypePurchase, -p.Amount, p.Description, p.Reference, nil, p.Metadata)
	})
	if err != nil {
		return nil, s.fail(ctx, "spend", p.UserID, p.Amount, err)
	}

	s.written(ctx, tx)
	return tx, nil
}

// Deposit credits amount to the user. Type may be TypeDeposit (default) or TypeBonus.
func (s *Service) Deposit(ctx context.Context, p DepositParams) (*Transaction, error) {
	if err := validate(p.UserID, p.Amount); err != nil {
		return nil, err
	}
	typ := p.Type
	if typ == "" {
		typ = TypeDeposit
	}
	if typ != TypeDeposit && typ != TypeBonus {
		return nil, ErrInvalidType
	}

	tx, _, err := s.store.Apply(ctx, p.UserID, s.currency, func(cur Balance) (*Transaction, error) {
		return s.entry(cur, typ, p.Amount, p.Description, p.Reference, nil, p.Metadata)
	})
	if err != nil {
		return nil, s.fail(ctx, "deposit", p.UserID, p.Amount, err)
	}

	s.written(ctx, tx)
	return tx, nil
}

// Refund returns credits to the user. When OriginalTransactionID is set the
// original must be a debit of the same user and the refund may not exceed it.
// Refund itself is not idempotent: callers that retry check FindRefund first.
func (s *Service) Refund(ctx context.Context, p RefundParams) (*Transaction, error) {
	if err := validate(p.UserID, p.Amount); err != nil {
		return nil, err
	}

	if p.OriginalTransactionID != nil {
		orig, err := s.store.GetTransaction(ctx, *p.OriginalTransactionID)
		if err != nil {
			return nil, s.fail(ctx, "refund", p.UserID, p.Amount, err)
		}
		if orig.UserID != p.UserID || !orig.Type.IsDebit() {
			return nil, ErrOriginalNotRefundable
		}
		if p.Amount > -orig.Amount {
			return nil, ErrRefundExceedsDebit
		}
		if p.Reference == "" {
			p.Reference = orig.Reference
		}
	}

	tx, _, err := s.store.Apply(ctx, p.UserID, s.currency, func(cur Balance) (*Transaction, error) {
		return s.entry(cur, TypeRefund, p.Amount, p.Description, p.Reference, p.OriginalTransactionID, p.Metadata)
	})
	if err != nil {
		return nil, s.fail(ctx, "refund", p.UserID, p.Amount, err)
	}

	s.written(ctx, tx)
	return tx, nil
}

// Balance returns the user's cached balance; unknown users have a zero
// balance in the ledger currency.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	b, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if b.Currency == "" {
		b.Currency = s.currency
	}
	return b, nil
}

// History lists a user's transactions, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID, opts ListOpts) ([]Transaction, error) {
	return s.store.ListTransactions(ctx, userID, opts)
}

// FindRefund returns the refund of originalID, or (nil, nil) when there is none.
func (s *Service) FindRefund(ctx context.Context, originalID uuid.UUID) (*Transaction, error) {
	tx, err := s.store.FindRefundOf(ctx, originalID)
	if errors.Is(err, ErrTransactionNotFound) {
		return nil, nil
	}
	return tx, err
}

// FindByReference returns every transaction carrying reference, oldest first.
func (s *Service) FindByReference(ctx context.Context, reference string) ([]Transaction, error) {
	return s.store.FindByReference(ctx, reference)
}

// Reconcile compares the cached balance with the sum of the ledger and logs
// an error when they drift apart.
func (s *Service) Reconcile(ctx context.Context, userID uuid.UUID) (*Reconciliation, error) {
	bal, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	total, count, err := s.store.SumAmounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	r := &Reconciliation{
		UserID:       userID,
		CachedTotal:  bal.TotalBalance,
		LedgerTotal:  total,
		Transactions: count,
	}
	if !r.Consistent() {
		s.logger.ErrorContext(ctx, "credit balance drift detected",
			logger.UserID(userID),
			slog.Int64("cached_total", r.CachedTotal),
			slog.Int64("ledger_total", r.LedgerTotal),
		)
	}
	return r, nil
}

// entry builds the next ledger row. Balance arithmetic goes through pricing so
// a credit that would overflow the balance is rejected instead of wrapping.
func (s *Service) entry(cur Balance, typ Type, amount int64, desc, ref string, original *uuid.UUID, md Metadata) (*Transaction, error) {
	after, err := pricing.AddCents(cur.TotalBalance, amount)
	if err != nil {
		return nil, errors.Join(ErrInvalidAmount, err)
	}
	return &Transaction{
		ID:                    uuid.New(),
		UserID:                cur.UserID,
		Type:                  typ,
		Amount:                amount,
		BalanceBefore:         cur.TotalBalance,
		BalanceAfter:          after,
		Currency:              s.currency,
		Description:           desc,
		Reference:             ref,
		OriginalTransactionID: original,
		Metadata:              md,
		CreatedAt:             s.now().UTC(),
	}, nil
}

func (s *Service) written(ctx context.Context, tx *Transaction) {
	s.metrics.written(tx)
	s.logger.InfoContext(ctx, "credit transaction written",
		logger.UserID(tx.UserID),
		logger.TransactionID(tx.ID),
		slog.String("type", string(tx.Type)),
		logger.AmountCents(tx.Amount),
		slog.Int64("balance_after", tx.BalanceAfter),
	)
}

func (s *Service) fail(ctx context.Context, op string, userID uuid.UUID, amount int64, err error) error {
	switch {
	case errors.Is(err, ErrInsufficientCredits):
		s.metrics.reject("insufficient_credits")
		s.logger.InfoContext(ctx, "credit mutation rejected",
			slog.String("op", op), logger.UserID(userID), logger.AmountCents(amount), logger.Reason("insufficient_credits"))
	case errors.Is(err, ErrAlreadyRefunded), errors.Is(err, ErrCurrencyMismatch), errors.Is(err, ErrTransactionNotFound),
		errors.Is(err, ErrInvalidAmount):
		s.metrics.reject(op)
	default:
		s.logger.ErrorContext(ctx, "credit mutation failed",
			slog.String("op", op), logger.UserID(userID), logger.AmountCents(amount), logger.Error(err))
	}
	return err
}

func validate(userID uuid.UUID, amount int64) error {
	if userID == uuid.Nil {
		return ErrInvalidUserID
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
