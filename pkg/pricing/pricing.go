package pricing

import "math"

// TermPrice is the result of pricing a multi-month term.
type TermPrice struct {
	GrossCents      int64 // base price multiplied by term, before discount
	DiscountCents   int64 // GrossCents - TotalPriceCents
	TotalPriceCents int64
	TermMonths      int
	DiscountPercent int
}

// ComputeTermPricing returns round(base * term * (100 - discount) / 100).
// The product is computed in integers and rounded once, so a 10% discount on
// twelve months of 1000 is exactly 10800.
func ComputeTermPricing(basePriceCents int64, termMonths, discountPercent int) (TermPrice, error) {
	if basePriceCents < 0 {
		return TermPrice{}, ErrNegativeAmount
	}
	if termMonths < 1 {
		return TermPrice{}, ErrInvalidTerm
	}
	if discountPercent < 0 || discountPercent > 100 {
		return TermPrice{}, ErrInvalidPercent
	}

	gross, ok := mul(basePriceCents, int64(termMonths))
	if !ok {
		return TermPrice{}, ErrAmountOverflow
	}
	scaled, ok := mul(gross, int64(100-discountPercent))
	if !ok {
		return TermPrice{}, ErrAmountOverflow
	}
	total := divRound(scaled, 100)

	return TermPrice{
		GrossCents:      gross,
		DiscountCents:   gross - total,
		TotalPriceCents: total,
		TermMonths:      termMonths,
		DiscountPercent: discountPercent,
	}, nil
}

// ComputeEffectiveMonthlyCents spreads a term total over its months.
// The value is for display and comparison only; it is never charged.
func ComputeEffectiveMonthlyCents(totalPriceCents int64, termMonths int) (int64, error) {
	if totalPriceCents < 0 {
		return 0, ErrNegativeAmount
	}
	if termMonths < 1 {
		return 0, ErrInvalidTerm
	}
	return divRound(totalPriceCents, int64(termMonths)), nil
}

// PercentOf returns round(amount * percent / 100).
func PercentOf(amountCents int64, percent int) (int64, error) {
	if amountCents < 0 {
		return 0, ErrNegativeAmount
	}
	if percent < 0 || percent > 100 {
		return 0, ErrInvalidPercent
	}
	scaled, ok := mul(amountCents, int64(percent))
	if !ok {
		return 0, ErrAmountOverflow
	}
	return divRound(scaled, 100), nil
}

// AddCents returns a + b, or ErrAmountOverflow when the sum does not fit in int64.
func AddCents(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}

// divRound divides non-negative n by positive d rounding half up.
func divRound(n, d int64) int64 {
	q, r := n/d, n%d
	if r*2 >= d {
		q++
	}
	return q
}

func mul(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt64/b {
		return 0, false
	}
	return a * b, true
}
