package order

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists orders.
type Store interface {
	// CreateWithItems inserts an order and its items.
	CreateWithItems(ctx context.Context, o *Order) error

	// CreateWithItemsInTransaction inserts the order and runs fn in the same
	// transaction; ctx passed to fn carries it. An error from fn rolls back
	// the order.
	CreateWithItemsInTransaction(ctx context.Context, o *Order, fn func(ctx context.Context) error) error

	// UpdateStatus moves a non-terminal order to status. Setting a terminal
	// order to its current status is a no-op; anything else returns
	// ErrTerminalStatus.
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, reason string) error

	// UpdatePayment records the provider or ledger reference of a payment.
	UpdatePayment(ctx context.Context, id uuid.UUID, reference string, paidAt time.Time) error

	Get(ctx context.Context, id uuid.UUID) (*Order, error)

	// HasCompletedOrder reports whether userID has any order past payment.
	HasCompletedOrder(ctx context.Context, userID uuid.UUID) (bool, error)
}

// prepare fills ids and timestamps before insert.
func prepare(o *Order, now time.Time) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = StatusPendingPayment
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	for i := range o.Items {
		if o.Items[i].ID == uuid.Nil {
			o.Items[i].ID = uuid.New()
		}
		o.Items[i].OrderID = o.ID
	}
	return o.Validate()
}
