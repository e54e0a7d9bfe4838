// Package coupon validates percent-off coupons and manages their limited
// redemption slots.
//
// A coupon's scope is resolved once through a ClaimRules table into one of
// four rule kinds (Claim, ChooseCategory, Unavailable, Removed); the table
// ships with global/category/product and can be extended from YAML with
// LoadClaimRules, so new business scopes never become new branches.
//
// Slot accounting:
//
//	reserved  -> redeemed  FinalizeRedemptionForOrder, after payment succeeded
//	reserved  -> voided    VoidRedemptionForOrder, on any downstream failure
//
// Reserved and redeemed slots count against MaxRedemptions. Reservation runs
// inside the caller's transaction and takes the coupon row lock, which is the
// only thing keeping two concurrent purchases from taking the last slot.
//
// Rejections are *Rejection values with a stable Reason and match the
// package sentinels:
//
//	if errors.Is(err, coupon.ErrMaxRedemptions) { ... }
package coupon
