package coupon

import (
	"context"

	"github.com/google/uuid"
)

// Store persists coupons and redemption slots.
type Store interface {
	CreateCoupon(ctx context.Context, c *Coupon) error
	GetCoupon(ctx context.Context, id uuid.UUID) (*Coupon, error)
	GetCouponByCode(ctx context.Context, code string) (*Coupon, error)
	SetCouponStatus(ctx context.Context, id uuid.UUID, status Status) error

	// ActiveRedemptions counts reserved and redeemed slots of a coupon and
	// reports whether userID holds one of them.
	ActiveRedemptions(ctx context.Context, couponID, userID uuid.UUID) (count int, userHolds bool, err error)

	// Reserve locks the coupon row, re-checks status and capacity and inserts
	// r as reserved. It joins a transaction carried in ctx so the slot
	// co-commits with the order that claims it.
	Reserve(ctx context.Context, r *Redemption) error

	// TransitionForOrder moves the order's redemptions in status from to
	// status to and returns how many rows changed.
	TransitionForOrder(ctx context.Context, orderID uuid.UUID, from, to RedemptionStatus) (int, error)

	// RedemptionForOrder returns the latest redemption of an order.
	RedemptionForOrder(ctx context.Context, orderID uuid.UUID) (*Redemption, error)
}

// OrderHistory answers the first-order-only check.
type OrderHistory interface {
	HasCompletedOrder(ctx context.Context, userID uuid.UUID) (bool, error)
}
