package coupon

import (
	"time"

	"github.com/google/uuid"
)

// Status is the administrative state of a coupon.
type Status string

const (
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusArchived Status = "archived"
)

// Built-in scope keys. Additional keys come from the claim-rule table.
const (
	ScopeGlobal   = "global"
	ScopeCategory = "category"
	ScopeProduct  = "product"
)

// Unlimited disables the redemption cap.
const Unlimited = -1

// Coupon is a percent-off offer. Zero-value optional fields mean "no restriction".
type Coupon struct {
	ID             uuid.UUID  `json:"id"`
	Code           string     `json:"code"` // normalized
	PercentOff     int        `json:"percent_off"`
	Scope          string     `json:"scope"` // normalized claim-rule key
	ProductID      *string    `json:"product_id,omitempty"`
	Category       *string    `json:"category,omitempty"`
	TermMonths     *int       `json:"term_months,omitempty"`
	Status         Status     `json:"status"`
	StartsAt       *time.Time `json:"starts_at,omitempty"`
	EndsAt         *time.Time `json:"ends_at,omitempty"`
	MaxRedemptions int        `json:"max_redemptions"` // Unlimited for no cap
	BoundUserID    *uuid.UUID `json:"bound_user_id,omitempty"`
	FirstOrderOnly bool       `json:"first_order_only"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ActiveAt reports whether the coupon is active and inside its window at t.
func (c *Coupon) ActiveAt(t time.Time) bool {
	if c.Status != StatusActive {
		return false
	}
	if c.StartsAt != nil && t.Before(*c.StartsAt) {
		return false
	}
	if c.EndsAt != nil && t.After(*c.EndsAt) {
		return false
	}
	return true
}

// HasCapacity reports whether another redemption fits under the cap.
func (c *Coupon) HasCapacity(active int) bool {
	return c.MaxRedemptions == Unlimited || active < c.MaxRedemptions
}

// RedemptionStatus tracks a redemption slot.
type RedemptionStatus string

const (
	RedemptionReserved RedemptionStatus = "reserved"
	RedemptionRedeemed RedemptionStatus = "redeemed"
	RedemptionVoided   RedemptionStatus = "voided"
)

// Redemption is a claim on one of a coupon's slots, tied to an order.
// Reserved and redeemed rows count against MaxRedemptions; voided rows do not.
type Redemption struct {
	ID        uuid.UUID        `json:"id"`
	CouponID  uuid.UUID        `json:"coupon_id"`
	UserID    uuid.UUID        `json:"user_id"`
	OrderID   uuid.UUID        `json:"order_id"`
	Status    RedemptionStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Target is the product a coupon is being applied to.
type Target struct {
	ProductID string
	Category  string
}

// Validation is the outcome of a successful ValidateCouponForOrder.
type Validation struct {
	Coupon        *Coupon
	DiscountCents int64
	Rule          ClaimRule
}

// CreateParams describes a new coupon. Code and Scope are normalized on create.
type CreateParams struct {
	Code           string
	PercentOff     int
	Scope          string
	ProductID      *string
	Category       *string
	TermMonths     *int
	StartsAt       *time.Time
	EndsAt         *time.Time
	MaxRedemptions int // Unlimited or a cap; 0 allows no redemptions
	BoundUserID    *uuid.UUID
	FirstOrderOnly bool
}
