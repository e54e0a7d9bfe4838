package purchase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/seatshare/pkg/coupon"
	"github.com/dmitrymomot/seatshare/pkg/credits"
	"github.com/dmitrymomot/seatshare/pkg/order"
	"github.com/dmitrymomot/seatshare/pkg/outbox"
	"github.com/dmitrymomot/seatshare/pkg/pricing"
	"github.com/dmitrymomot/seatshare/pkg/subscription"
)

// Request asks to buy TermMonths of ProductID for UserID.
// PaymentMethod defaults to credits.
type Request struct {
	UserID        uuid.UUID
	ProductID     string
	TermMonths    int
	CouponCode    string
	PaymentMethod order.PaymentMethod
	AutoRenew     bool
}

// Quote is the priced preview of a Request.
type Quote struct {
	Product             subscription.Product
	Snapshot            subscription.Snapshot
	Term                pricing.TermPrice
	Coupon              *coupon.Coupon
	CouponDiscountCents int64
	TotalCents          int64
	Currency            string
}

// Receipt is what a purchase produced. Transaction is nil for free and
// external orders; Payment is set only for external orders.
type Receipt struct {
	Order        *order.Order
	Subscription *subscription.Subscription
	Transaction  *credits.Transaction
	Payment      *Payment
	State        State
}

// PaymentRequest is handed to an external provider.
type PaymentRequest struct {
	OrderID     uuid.UUID
	UserID      uuid.UUID
	Method      order.PaymentMethod
	AmountCents int64
	Currency    string
	Description string
}

// Payment is the provider's pending charge the user completes out of band.
type Payment struct {
	Reference   string
	RedirectURL string
	ExpiresAt   time.Time
}

// PaymentProvider starts card or crypto payments. The provider later reports
// the outcome through CompleteExternalPayment or FailExternalPayment.
type PaymentProvider interface {
	CreatePayment(ctx context.Context, req PaymentRequest) (*Payment, error)
}

// Ledger is the part of credits.Service the saga moves money with.
type Ledger interface {
	Currency() string
	Spend(ctx context.Context, p credits.SpendParams) (*credits.Transaction, error)
	Refund(ctx context.Context, p credits.RefundParams) (*credits.Transaction, error)
	FindRefund(ctx context.Context, originalID uuid.UUID) (*credits.Transaction, error)
	FindByReference(ctx context.Context, reference string) ([]credits.Transaction, error)
}

// Coupons is the part of coupon.Engine the saga needs.
type Coupons interface {
	ValidateCouponForOrder(ctx context.Context, code string, userID uuid.UUID, target coupon.Target, subtotalCents int64, termMonths int) (*coupon.Validation, error)
	ReserveCouponRedemption(ctx context.Context, couponID, userID, orderID uuid.UUID) (*coupon.Redemption, error)
	FinalizeRedemptionForOrder(ctx context.Context, orderID uuid.UUID) error
	VoidRedemptionForOrder(ctx context.Context, orderID uuid.UUID) error
}

// Catalog resolves products; *subscription.Catalog implements it.
type Catalog interface {
	Product(ctx context.Context, id string) (subscription.Product, error)
}

// Intents records and resolves outbox intents; *outbox.Outbox implements it.
type Intents interface {
	Record(ctx context.Context, kind string, payload any, opts ...outbox.RecordOption) (*outbox.Intent, error)
	Resolve(ctx context.Context, id uuid.UUID) error
}

// Deps are the collaborators of an Orchestrator. All are required.
type Deps struct {
	Ledger        Ledger
	Coupons       Coupons
	Orders        order.Store
	Subscriptions subscription.Store
	Catalog       Catalog
	Intents       Intents
}
