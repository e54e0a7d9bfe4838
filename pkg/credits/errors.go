package credits

import "errors"

var (
	ErrInsufficientCredits = errors.New("credits: insufficient available balance")
	ErrInvalidAmount       = errors.New("credits: amount must be positive")
	ErrInvalidUserID       = errors.New("credits: user id is required")
	ErrInvalidType         = errors.New("credits: transaction type not allowed for this operation")
	ErrCurrencyMismatch    = errors.New("credits: currency does not match the balance currency")

	ErrTransactionNotFound   = errors.New("credits: transaction not found")
	ErrRefundExceedsDebit    = errors.New("credits: refund exceeds the original debit")
	ErrOriginalNotRefundable = errors.New("credits: original transaction is not a debit of this user")
	ErrAlreadyRefunded       = errors.New("credits: original transaction already refunded")

	ErrStoreFailure = errors.New("credits: store failure")
)
