package coupon

import "errors"

// Reason is a stable, caller-facing rejection code.
type Reason string

const (
	ReasonCouponInvalid   Reason = "coupon_invalid"
	ReasonScopeMismatch   Reason = "scope_mismatch"
	ReasonTermMismatch    Reason = "term_mismatch"
	ReasonMaxRedemptions  Reason = "max_redemptions"
	ReasonAlreadyRedeemed Reason = "already_redeemed"
)

// Rejection is returned when a coupon cannot be used for an order.
// It matches the sentinel with the same Reason under errors.Is.
type Rejection struct {
	Reason Reason
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return "coupon: " + string(r.Reason)
	}
	return "coupon: " + string(r.Reason) + ": " + r.Detail
}

func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	return ok && t.Reason == r.Reason && t.Detail == ""
}

var (
	ErrCouponInvalid   = &Rejection{Reason: ReasonCouponInvalid}
	ErrScopeMismatch   = &Rejection{Reason: ReasonScopeMismatch}
	ErrTermMismatch    = &Rejection{Reason: ReasonTermMismatch}
	ErrMaxRedemptions  = &Rejection{Reason: ReasonMaxRedemptions}
	ErrAlreadyRedeemed = &Rejection{Reason: ReasonAlreadyRedeemed}
)

var (
	ErrCouponNotFound     = errors.New("coupon: not found")
	ErrCodeTaken          = errors.New("coupon: code already exists")
	ErrInvalidParams      = errors.New("coupon: invalid coupon parameters")
	ErrRedemptionNotFound = errors.New("coupon: no redemption for order")
	ErrInvalidClaimRules  = errors.New("coupon: invalid claim rules")
	ErrStoreFailure       = errors.New("coupon: store failure")
)

func reject(reason Reason, detail string) *Rejection {
	return &Rejection{Reason: reason, Detail: detail}
}

// ReasonOf extracts the rejection reason from err.
func ReasonOf(err error) (Reason, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason, true
	}
	return "", false
}
