package coupon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/seatshare/pkg/logger"
	"github.com/dmitrymomot/seatshare/pkg/pricing"
)

// Engine validates coupons and manages redemption slots.
type Engine struct {
	store  Store
	orders OrderHistory
	rules  *ClaimRules
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine panics when store or orders is nil.
func NewEngine(store Store, orders OrderHistory, opts ...Option) *Engine {
	if store == nil {
		panic("coupon: store is required")
	}
	if orders == nil {
		panic("coupon: order history is required")
	}
	e := &Engine{
		store:  store,
		orders: orders,
		rules:  DefaultClaimRules(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(logger.Component("coupon"))
	return e
}

// CreateCoupon normalizes and stores a new coupon.
func (e *Engine) CreateCoupon(ctx context.Context, p CreateParams) (*Coupon, error) {
	code := NormalizeCode(p.Code)
	scope := NormalizeScope(p.Scope)
	if scope == "" {
		scope = ScopeGlobal
	}

	switch {
	case code == "":
		return nil, errors.Join(ErrInvalidParams, errors.New("code is empty after normalization"))
	case p.PercentOff < 0 || p.PercentOff > 100:
		return nil, errors.Join(ErrInvalidParams, pricing.ErrInvalidPercent)
	case p.MaxRedemptions < Unlimited:
		return nil, errors.Join(ErrInvalidParams, errors.New("max redemptions must be -1 or more"))
	case p.StartsAt != nil && p.EndsAt != nil && p.EndsAt.Before(*p.StartsAt):
		return nil, errors.Join(ErrInvalidParams, errors.New("window ends before it starts"))
	case p.TermMonths != nil && *p.TermMonths < 1:
		return nil, errors.Join(ErrInvalidParams, pricing.ErrInvalidTerm)
	}
	if _, removed := e.rules.Resolve(scope).(Removed); removed {
		return nil, errors.Join(ErrInvalidParams, errors.New("scope is removed"))
	}

	now := e.now().UTC()
	c := &Coupon{
		ID:             uuid.New(),
		Code:           code,
		PercentOff:     p.PercentOff,
		Scope:          scope,
		ProductID:      p.ProductID,
		Category:       p.Category,
		TermMonths:     p.TermMonths,
		Status:         StatusActive,
		StartsAt:       p.StartsAt,
		EndsAt:         p.EndsAt,
		MaxRedemptions: p.MaxRedemptions,
		BoundUserID:    p.BoundUserID,
		FirstOrderOnly: p.FirstOrderOnly,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.CreateCoupon(ctx, c); err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "coupon created", logger.CouponID(c.ID), slog.String("code", c.Code), slog.String("scope", c.Scope))
	return c, nil
}

func (e *Engine) GetCoupon(ctx context.Context, id uuid.UUID) (*Coupon, error) {
	return e.store.GetCoupon(ctx, id)
}

// SetStatus pauses, archives or re-activates a coupon.
func (e *Engine) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	switch status {
	case StatusActive, StatusPaused, StatusArchived:
	default:
		return ErrInvalidParams
	}
	return e.store.SetCouponStatus(ctx, id, status)
}

// ValidateCouponForOrder checks that code can be applied by userID to target
// for a term of termMonths and computes the discount on subtotalCents.
// Rejections are *Rejection values; other errors are infrastructure failures.
func (e *Engine) ValidateCouponForOrder(ctx context.Context, code string, userID uuid.UUID, target Target, subtotalCents int64, termMonths int) (*Validation, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, reject(ReasonCouponInvalid, "empty code")
	}

	c, err := e.store.GetCouponByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrCouponNotFound) {
			return nil, reject(ReasonCouponInvalid, "unknown code")
		}
		return nil, err
	}

	if !c.ActiveAt(e.now()) {
		return nil, reject(ReasonCouponInvalid, "inactive or outside its window")
	}
	if c.BoundUserID != nil && *c.BoundUserID != userID {
		return nil, reject(ReasonCouponInvalid, "bound to another user")
	}
	if c.FirstOrderOnly {
		has, err := e.orders.HasCompletedOrder(ctx, userID)
		if err != nil {
			return nil, err
		}
		if has {
			return nil, reject(ReasonCouponInvalid, "first order only")
		}
	}

	rule := e.rules.Resolve(c.Scope)
	if rej := check(rule, c, target); rej != nil {
		return nil, rej
	}
	if c.TermMonths != nil && *c.TermMonths != termMonths {
		return nil, reject(ReasonTermMismatch, "")
	}

	count, held, err := e.store.ActiveRedemptions(ctx, c.ID, userID)
	if err != nil {
		return nil, err
	}
	if held {
		return nil, reject(ReasonAlreadyRedeemed, "")
	}
	if !c.HasCapacity(count) {
		return nil, reject(ReasonMaxRedemptions, "")
	}

	discount, err := pricing.PercentOf(subtotalCents, c.PercentOff)
	if err != nil {
		return nil, err
	}
	return &Validation{
		Coupon:        c,
		DiscountCents: min(subtotalCents, discount),
		Rule:          rule,
	}, nil
}

// ReserveCouponRedemption claims a slot for orderID. Call it with a context
// carrying the order's transaction so both commit or neither does; the
// coupon row lock taken by the store is what serializes the last slot.
func (e *Engine) ReserveCouponRedemption(ctx context.Context, couponID, userID, orderID uuid.UUID) (*Redemption, error) {
	now := e.now().UTC()
	r := &Redemption{
		ID:        uuid.New(),
		CouponID:  couponID,
		UserID:    userID,
		OrderID:   orderID,
		Status:    RedemptionReserved,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.Reserve(ctx, r); err != nil {
		if reason, ok := ReasonOf(err); ok {
			e.logger.InfoContext(ctx, "coupon reservation rejected",
				logger.CouponID(couponID), logger.OrderID(orderID), logger.Reason(string(reason)))
		}
		return nil, err
	}
	e.logger.DebugContext(ctx, "coupon slot reserved", logger.CouponID(couponID), logger.OrderID(orderID))
	return r, nil
}

// FinalizeRedemptionForOrder marks the order's reserved slot redeemed.
// Finalizing an already redeemed slot is a no-op.
func (e *Engine) FinalizeRedemptionForOrder(ctx context.Context, orderID uuid.UUID) error {
	n, err := e.store.TransitionForOrder(ctx, orderID, RedemptionReserved, RedemptionRedeemed)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	r, err := e.store.RedemptionForOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if r.Status == RedemptionRedeemed {
		return nil
	}
	return ErrRedemptionNotFound
}

// VoidRedemptionForOrder frees the order's reserved slot. Orders without a
// reserved slot are left alone, so compensation can call it unconditionally.
func (e *Engine) VoidRedemptionForOrder(ctx context.Context, orderID uuid.UUID) error {
	n, err := e.store.TransitionForOrder(ctx, orderID, RedemptionReserved, RedemptionVoided)
	if err != nil {
		return err
	}
	if n > 0 {
		e.logger.InfoContext(ctx, "coupon slot voided", logger.OrderID(orderID))
	}
	return nil
}
