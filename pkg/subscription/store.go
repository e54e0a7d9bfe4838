package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists subscriptions.
type Store interface {
	// Create inserts s. A second active subscription of the same user and
	// product returns ErrSubscriptionAlreadyExists.
	Create(ctx context.Context, s *Subscription) error

	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// GetByOrder returns the subscription bought by orderID.
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*Subscription, error)

	HasActive(ctx context.Context, userID uuid.UUID, productID string) (bool, error)

	// ListDueForRenewal returns active auto-renewing subscriptions expiring
	// before the given time, soonest first.
	ListDueForRenewal(ctx context.Context, before time.Time, limit int) ([]Subscription, error)

	// ExtendPeriod moves an active subscription's expiry from expectedExpiresAt
	// to newExpiresAt and bumps its renewal count. It returns ErrPeriodConflict
	// when the stored expiry is no longer expectedExpiresAt.
	ExtendPeriod(ctx context.Context, id uuid.UUID, expectedExpiresAt, newExpiresAt, renewedAt time.Time) (*Subscription, error)

	// ExpireLapsed marks active subscriptions with expiry at or before now
	// as expired and returns how many changed.
	ExpireLapsed(ctx context.Context, now time.Time) (int, error)
}

// New builds an active subscription starting at now for one term of snap.
func New(userID, orderID uuid.UUID, productID string, snap Snapshot, paidCents int64, autoRenew bool, now time.Time) *Subscription {
	// Postgres keeps microseconds; the CAS in ExtendPeriod compares exactly.
	now = now.UTC().Truncate(time.Microsecond)
	return &Subscription{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: productID,
		OrderID:   orderID,
		Status:    StatusActive,
		Snapshot:  snap,
		PaidCents: paidCents,
		AutoRenew: autoRenew,
		StartsAt:  now,
		ExpiresAt: AddTerm(now, snap.TermMonths),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func validate(s *Subscription) error {
	switch {
	case s.ID == uuid.Nil, s.UserID == uuid.Nil, s.OrderID == uuid.Nil, s.ProductID == "":
		return ErrInvalidSubscription
	case s.Snapshot.TermMonths < 1, !s.ExpiresAt.After(s.StartsAt), s.PaidCents < 0:
		return ErrInvalidSubscription
	}
	return nil
}
