package pricing

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/currency"
)

// DefaultCurrency is the ledger currency used when none is configured.
const DefaultCurrency = "USD"

// Money is an amount in minor units together with its ISO 4217 code.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// NewMoney validates the currency code and returns a Money value.
func NewMoney(amount int64, code string) (Money, error) {
	cur, err := ParseCurrency(code)
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: amount, Currency: cur}, nil
}

// ParseCurrency normalizes and validates an ISO 4217 currency code.
func ParseCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", errors.Join(ErrInvalidCurrency, err)
	}
	return unit.String(), nil
}

// Add returns m + o. Both values must share a currency.
func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	sum, err := AddCents(m.Amount, o.Amount)
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: sum, Currency: m.Currency}, nil
}

// Sub returns m - o. Both values must share a currency.
func (m Money) Sub(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	if o.Amount == math.MinInt64 {
		return Money{}, ErrAmountOverflow
	}
	diff, err := AddCents(m.Amount, -o.Amount)
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: diff, Currency: m.Currency}, nil
}

func (m Money) IsZero() bool { return m.Amount == 0 }

// String formats the amount with two decimal places, e.g. "108.00 USD".
func (m Money) String() string {
	sign := ""
	amount := m.Amount
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amount/100, amount%100, m.Currency)
}
