package credits

import (
	"context"

	"github.com/google/uuid"
)

// BuildFunc receives the locked balance and returns the transaction to append.
// Returning an error aborts the mutation without writing anything.
type BuildFunc func(current Balance) (*Transaction, error)

// Store persists the ledger.
type Store interface {
	// Apply locks the balance row of userID, creating it with currency when
	// missing, and calls build with its current state. The returned transaction
	// is inserted and the balance moved by its Amount in the same database
	// transaction.
	Apply(ctx context.Context, userID uuid.UUID, currency string, build BuildFunc) (*Transaction, *Balance, error)

	// GetBalance returns the cached balance. A user without a row has a zero balance.
	GetBalance(ctx context.Context, userID uuid.UUID) (*Balance, error)

	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// ListTransactions returns a user's transactions, newest first.
	ListTransactions(ctx context.Context, userID uuid.UUID, opts ListOpts) ([]Transaction, error)

	// FindRefundOf returns the refund linked to originalID or ErrTransactionNotFound.
	FindRefundOf(ctx context.Context, originalID uuid.UUID) (*Transaction, error)

	// FindByReference returns all transactions carrying reference, oldest first.
	FindByReference(ctx context.Context, reference string) ([]Transaction, error)

	// SumAmounts returns the ledger total and the number of transactions for userID.
	SumAmounts(ctx context.Context, userID uuid.UUID) (total int64, count int64, err error)
}
