// Package pricing computes term prices for shared subscription products.
//
// All amounts are integer minor units (cents). A term price is derived from a
// monthly base price, a term length in months and a whole-number discount
// percent, and is rounded exactly once, half away from zero:
//
//	price, err := pricing.ComputeTermPricing(1000, 12, 10)
//	// price.TotalPriceCents == 10800, price.DiscountCents == 1200
//
// The functions are pure and safe for concurrent use. The coupon engine and
// the renewal worker reuse PercentOf and ComputeTermPricing so a stored price
// snapshot always reproduces the same amount.
package pricing
