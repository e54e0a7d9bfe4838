package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusInProcess      Status = "in_process"
	StatusFulfilled      Status = "fulfilled"
	StatusCancelled      Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPendingPayment, StatusInProcess, StatusFulfilled, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further status change is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusFulfilled || s == StatusCancelled
}

// PaymentMethod is how an order is paid.
type PaymentMethod string

const (
	PaymentCredits PaymentMethod = "credits"
	PaymentCard    PaymentMethod = "card"
	PaymentCrypto  PaymentMethod = "crypto"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCredits, PaymentCard, PaymentCrypto:
		return true
	}
	return false
}

// IsExternal reports whether the method is settled by a payment provider.
func (m PaymentMethod) IsExternal() bool {
	return m == PaymentCard || m == PaymentCrypto
}

// Order is a single purchase. Amounts are minor units of Currency.
//
//	TotalCents = SubtotalCents - TermDiscountCents - CouponDiscountCents
type Order struct {
	ID                  uuid.UUID     `json:"id"`
	UserID              uuid.UUID     `json:"user_id"`
	Status              Status        `json:"status"`
	StatusReason        string        `json:"status_reason,omitempty"`
	Currency            string        `json:"currency"`
	SubtotalCents       int64         `json:"subtotal_cents"`
	TermDiscountCents   int64         `json:"term_discount_cents"`
	CouponDiscountCents int64         `json:"coupon_discount_cents"`
	TotalCents          int64         `json:"total_cents"`
	CouponID            *uuid.UUID    `json:"coupon_id,omitempty"`
	PaymentMethod       PaymentMethod `json:"payment_method"`
	PaymentReference    string        `json:"payment_reference,omitempty"`
	PaidAt              *time.Time    `json:"paid_at,omitempty"`
	Items               []Item        `json:"items"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// Item is one product line of an order.
type Item struct {
	ID                  uuid.UUID `json:"id"`
	OrderID             uuid.UUID `json:"order_id"`
	ProductID           string    `json:"product_id"`
	TermMonths          int       `json:"term_months"`
	BasePriceCents      int64     `json:"base_price_cents"`
	TermDiscountPercent int       `json:"term_discount_percent"`
	TotalCents          int64     `json:"total_cents"`
}

// Validate checks the amount arithmetic and enum fields.
func (o *Order) Validate() error {
	var errs []error
	if o.ID == uuid.Nil {
		errs = append(errs, errors.New("id is required"))
	}
	if o.UserID == uuid.Nil {
		errs = append(errs, errors.New("user id is required"))
	}
	if !o.Status.Valid() {
		errs = append(errs, fmt.Errorf("unknown status %q", o.Status))
	}
	if !o.PaymentMethod.Valid() {
		errs = append(errs, fmt.Errorf("unknown payment method %q", o.PaymentMethod))
	}
	if o.SubtotalCents < 0 || o.TermDiscountCents < 0 || o.CouponDiscountCents < 0 {
		errs = append(errs, errors.New("amounts must not be negative"))
	}
	if o.TotalCents != o.SubtotalCents-o.TermDiscountCents-o.CouponDiscountCents || o.TotalCents < 0 {
		errs = append(errs, errors.New("total does not match subtotal minus discounts"))
	}
	if len(o.Items) == 0 {
		errs = append(errs, errors.New("at least one item is required"))
	}
	for i, it := range o.Items {
		if it.ProductID == "" || it.TermMonths < 1 {
			errs = append(errs, fmt.Errorf("item %d: product and term are required", i))
		}
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidOrder}, errs...)...)
	}
	return nil
}

// HasCompletedPayment reports whether the order reached payment capture.
func (o *Order) HasCompletedPayment() bool {
	return o.Status == StatusInProcess || o.Status == StatusFulfilled
}
