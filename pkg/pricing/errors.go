package pricing

import "errors"

var (
	ErrInvalidTerm      = errors.New("pricing: term must be at least one month")
	ErrInvalidPercent   = errors.New("pricing: percent must be between 0 and 100")
	ErrNegativeAmount   = errors.New("pricing: amount must not be negative")
	ErrAmountOverflow   = errors.New("pricing: amount overflows int64")
	ErrInvalidCurrency  = errors.New("pricing: invalid ISO 4217 currency code")
	ErrCurrencyMismatch = errors.New("pricing: currency mismatch")
)
