package subscription

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/seatshare/pkg/pricing"
)

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Snapshot freezes the pricing terms a subscription was bought with.
// Renewals are priced from it, never from the live catalog.
type Snapshot struct {
	BasePriceCents  int64  `json:"base_price_cents"`
	Currency        string `json:"currency"`
	TermMonths      int    `json:"term_months"`
	DiscountPercent int    `json:"discount_percent"`
}

// TermPrice prices one term of the snapshot.
func (s Snapshot) TermPrice() (pricing.TermPrice, error) {
	return pricing.ComputeTermPricing(s.BasePriceCents, s.TermMonths, s.DiscountPercent)
}

// Subscription grants a user access to a product until ExpiresAt.
type Subscription struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	ProductID     string     `json:"product_id"`
	OrderID       uuid.UUID  `json:"order_id"`
	Status        Status     `json:"status"`
	Snapshot      Snapshot   `json:"snapshot"`
	PaidCents     int64      `json:"paid_cents"`
	AutoRenew     bool       `json:"auto_renew"`
	RenewalCount  int        `json:"renewal_count"`
	StartsAt      time.Time  `json:"starts_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	LastRenewedAt *time.Time `json:"last_renewed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsActive returns true if the subscription is active.
func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// IsLapsedAt reports whether an active subscription ran past its period at now.
func (s *Subscription) IsLapsedAt(now time.Time) bool {
	return s.IsActive() && !now.Before(s.ExpiresAt)
}

// NextPeriodEnd is the expiry after one more term.
func (s *Subscription) NextPeriodEnd() time.Time {
	return AddTerm(s.ExpiresAt, s.Snapshot.TermMonths)
}

// AddTerm moves t forward by months calendar months.
func AddTerm(t time.Time, months int) time.Time {
	return t.AddDate(0, months, 0).UTC()
}
