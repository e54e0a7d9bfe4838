package purchase

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/seatshare/pkg/coupon"
)

// Code is the stable, caller-facing failure code of a purchase.
type Code string

const (
	CodeInsufficientCredits      Code = "insufficient_credits"
	CodeCouponInvalid            Code = Code(coupon.ReasonCouponInvalid)
	CodeScopeMismatch            Code = Code(coupon.ReasonScopeMismatch)
	CodeTermMismatch             Code = Code(coupon.ReasonTermMismatch)
	CodeMaxRedemptions           Code = Code(coupon.ReasonMaxRedemptions)
	CodeAlreadyRedeemed          Code = Code(coupon.ReasonAlreadyRedeemed)
	CodeTermUnavailable          Code = "term_unavailable"
	CodePurchaseNotAllowed       Code = "purchase_not_allowed"
	CodeSubscriptionCreateFailed Code = "subscription_create_failed"
	CodeInvalidRequest           Code = "invalid_request"
	CodeInternalError            Code = "internal_error"
)

// Kind groups codes by who can act on them.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindEligibility       Kind = "eligibility"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindInfrastructure    Kind = "infrastructure"
	KindCompensation      Kind = "compensation"
)

var (
	ErrOrderNotReconcilable = errors.New("purchase: order cannot be reconciled yet")
	ErrPaymentNotPending    = errors.New("purchase: order is not awaiting an external payment")
	ErrNoPaymentProvider    = errors.New("purchase: no payment provider configured")
)

// Failure is the only error type Purchase returns. Message is safe to show
// to the user; Cause is not. CompensationErr is set when undoing completed
// steps failed as well, in which case a reconcile intent has been queued.
type Failure struct {
	Code            Code
	Kind            Kind
	Message         string
	Cause           error
	CompensationErr error
	// OrderID is the order created before the failure, or uuid.Nil when the
	// purchase failed before an order existed.
	OrderID uuid.UUID
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("purchase: %s: %s", f.Code, f.Message)
	if f.Cause != nil {
		msg += ": " + f.Cause.Error()
	}
	if f.CompensationErr != nil {
		msg += " (compensation: " + f.CompensationErr.Error() + ")"
	}
	return msg
}

func (f *Failure) Unwrap() []error {
	errs := make([]error, 0, 2)
	for _, err := range []error{f.Cause, f.CompensationErr} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// CodeOf returns the failure code carried by err, or CodeInternalError for
// any other non-nil error.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Code
	}
	return CodeInternalError
}

func invalid(msg string) *Failure {
	return &Failure{Code: CodeInvalidRequest, Kind: KindValidation, Message: msg}
}

func notAllowed(msg string, cause error) *Failure {
	return &Failure{Code: CodePurchaseNotAllowed, Kind: KindEligibility, Message: msg, Cause: cause}
}

func internal(msg string, cause error) *Failure {
	return &Failure{Code: CodeInternalError, Kind: KindInfrastructure, Message: msg, Cause: cause}
}

// fromCoupon maps a coupon rejection to its verbatim code; anything else is
// an infrastructure failure.
func fromCoupon(err error) *Failure {
	if reason, ok := coupon.ReasonOf(err); ok {
		return &Failure{Code: Code(reason), Kind: KindEligibility, Message: "coupon cannot be applied", Cause: err}
	}
	return internal("coupon check failed", err)
}
