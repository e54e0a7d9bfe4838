package renewal

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrymomot/seatshare/pkg/credits"
	"github.com/dmitrymomot/seatshare/pkg/outbox"
	"github.com/dmitrymomot/seatshare/pkg/subscription"
)

// Mode tells manual and automatic renewals apart in logs and metrics.
type Mode string

const (
	ModeManual Mode = "manual"
	ModeAuto   Mode = "auto"
)

// Result is one successful renewal. Transaction is nil for a free term.
type Result struct {
	Subscription *subscription.Subscription
	Transaction  *credits.Transaction
}

// Stats summarizes one RenewDue pass.
type Stats struct {
	Due     int
	Renewed int
	Failed  int
	Expired int
}

// Fulfiller provisions the renewed period, for example by extending the
// seat with the upstream service. It is best-effort: errors are logged and
// never undo the renewal.
type Fulfiller interface {
	ScheduleFulfillment(ctx context.Context, sub *subscription.Subscription) error
}

// Ledger is the part of credits.Service renewals move money with.
type Ledger interface {
	Currency() string
	Spend(ctx context.Context, p credits.SpendParams) (*credits.Transaction, error)
	Refund(ctx context.Context, p credits.RefundParams) (*credits.Transaction, error)
	FindRefund(ctx context.Context, originalID uuid.UUID) (*credits.Transaction, error)
	FindByReference(ctx context.Context, reference string) ([]credits.Transaction, error)
}

// Intents records and resolves outbox intents; *outbox.Outbox implements it.
type Intents interface {
	Record(ctx context.Context, kind string, payload any, opts ...outbox.RecordOption) (*outbox.Intent, error)
	Resolve(ctx context.Context, id uuid.UUID) error
}

// Deps are the collaborators of a Worker. All are required.
type Deps struct {
	Ledger        Ledger
	Subscriptions subscription.Store
	Intents       Intents
}
