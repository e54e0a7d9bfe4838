package credits

import (
	"time"

	"github.com/google/uuid"
)

// Type classifies a ledger transaction.
type Type string

const (
	TypeDeposit        Type = "deposit"
	TypePurchase       Type = "purchase"
	TypeRefund         Type = "refund"
	TypeBonus          Type = "bonus"
	TypeWithdrawal     Type = "withdrawal"
	TypeRefundReversal Type = "refund_reversal"
)

func (t Type) Valid() bool {
	switch t {
	case TypeDeposit, TypePurchase, TypeRefund, TypeBonus, TypeWithdrawal, TypeRefundReversal:
		return true
	}
	return false
}

// IsDebit reports whether transactions of this type decrease the balance.
func (t Type) IsDebit() bool {
	return t == TypePurchase || t == TypeWithdrawal || t == TypeRefundReversal
}

// Metadata is free-form context stored alongside a transaction as JSON,
// such as the order id and its pricing snapshot.
type Metadata map[string]any

// Transaction is an immutable ledger entry. Amount is signed: negative for debits.
type Transaction struct {
	ID                    uuid.UUID  `json:"id"`
	UserID                uuid.UUID  `json:"user_id"`
	Type                  Type       `json:"type"`
	Amount                int64      `json:"amount"`
	BalanceBefore         int64      `json:"balance_before"`
	BalanceAfter          int64      `json:"balance_after"`
	Currency              string     `json:"currency"`
	Description           string     `json:"description"`
	Reference             string     `json:"reference,omitempty"`
	OriginalTransactionID *uuid.UUID `json:"original_transaction_id,omitempty"`
	Metadata              Metadata   `json:"metadata,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

// Balance is the cached per-user balance row.
type Balance struct {
	UserID           uuid.UUID `json:"user_id"`
	TotalBalance     int64     `json:"total_balance"`
	AvailableBalance int64     `json:"available_balance"`
	PendingBalance   int64     `json:"pending_balance"`
	Currency         string    `json:"currency"`
	LastUpdated      time.Time `json:"last_updated"`
}

// ListOpts filters History. Zero Limit means DefaultHistoryLimit.
type ListOpts struct {
	Types  []Type
	Limit  int
	Offset int
}

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

func (o ListOpts) normalized() ListOpts {
	if o.Limit <= 0 {
		o.Limit = DefaultHistoryLimit
	}
	o.Limit = min(o.Limit, MaxHistoryLimit)
	o.Offset = max(o.Offset, 0)
	return o
}

// Reconciliation compares the cached balance with the ledger sum.
type Reconciliation struct {
	UserID       uuid.UUID `json:"user_id"`
	CachedTotal  int64     `json:"cached_total"`
	LedgerTotal  int64     `json:"ledger_total"`
	Transactions int64     `json:"transactions"`
}

// Drift is CachedTotal - LedgerTotal. Anything but zero is a bug.
func (r Reconciliation) Drift() int64 { return r.CachedTotal - r.LedgerTotal }

func (r Reconciliation) Consistent() bool { return r.Drift() == 0 }

// SpendParams debits a user's available balance.
type SpendParams struct {
	UserID      uuid.UUID
	Amount      int64 // positive minor units
	Description string
	Reference   string
	Metadata    Metadata
}

// DepositParams credits a user's balance. Type defaults to TypeDeposit and
// may be TypeBonus.
type DepositParams struct {
	UserID      uuid.UUID
	Amount      int64
	Type        Type
	Description string
	Reference   string
	Metadata    Metadata
}

// RefundParams returns credits to a user, optionally linked to the debit it reverses.
type RefundParams struct {
	UserID                uuid.UUID
	Amount                int64
	Description           string
	Reference             string
	OriginalTransactionID *uuid.UUID
	Metadata              Metadata
}
