// Package order persists purchase orders and their line items.
//
// An order starts as pending_payment, moves to in_process once payment is
// captured and the subscription exists, and ends fulfilled or cancelled.
// Both end states are terminal; UpdateStatus refuses to leave them.
//
// CreateWithItemsInTransaction runs a callback inside the transaction that
// inserts the order, so work such as a coupon reservation commits or rolls
// back together with it.
package order
