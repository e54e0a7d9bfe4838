// Package subscription stores the subscriptions bought through purchases
// and the product catalog they are priced from.
//
// # Catalog
//
// Products are loaded from a ProductSource into a Catalog, which validates
// each entry (ISO currency, non-negative price, priceable terms) before it
// can be sold:
//
//	catalog, err := subscription.NewCatalog(ctx, subscription.NewYAMLSource("catalog.yaml"))
//	product, err := catalog.Product(ctx, "spotify-family")
//	price, err := product.Quote(12)
//
// NewInMemSource serves a fixed list, which is what tests use.
//
// # Snapshots
//
// A Subscription carries the Snapshot of the terms it was bought with.
// Renewals price the next term from the snapshot, so later catalog price
// changes never touch existing subscribers.
//
// # Periods
//
// ExtendPeriod is a compare-and-set on the current expiry. Two renewals of
// the same period cannot both extend it; the loser gets ErrPeriodConflict
// and is expected to refund its debit.
//
// ExpireLapsed flips active subscriptions whose expiry has passed to
// expired. At most one active subscription per user and product exists at
// any time.
package subscription
