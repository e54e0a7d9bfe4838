// Package credits implements the platform credit ledger.
//
// The ledger is an append-only list of signed transactions plus a cached
// balance row per user. Every mutation (Spend, Deposit, Refund) runs in one
// database transaction that holds the user's balance row lock, so for any
// user TotalBalance always equals the sum of transaction amounts and
// AvailableBalance never drops below zero. Mutations for one user are
// serialized; different users proceed in parallel.
//
// Two Store implementations are provided: PGStore on pgx (SELECT ... FOR
// UPDATE) and MemoryStore (per-user mutex) for tests and local runs.
//
//	svc := credits.NewService(credits.NewPGStore(pool),
//		credits.WithCurrency("USD"),
//		credits.WithLogger(log),
//	)
//	tx, err := svc.Spend(ctx, credits.SpendParams{
//		UserID:      userID,
//		Amount:      10800,
//		Description: "Netflix Premium, 12 months",
//		Reference:   orderID.String(),
//	})
//	if errors.Is(err, credits.ErrInsufficientCredits) {
//		// nothing was written
//	}
//
// Refund writes a compensating deposit linked to the original debit. Callers
// that may retry must check FindRefund first; the schema additionally rejects
// a second refund of the same transaction with ErrAlreadyRefunded.
package credits
