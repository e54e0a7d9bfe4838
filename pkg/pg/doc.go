// Package pg bootstraps the PostgreSQL layer on top of pgx/v5.
//
// It covers four concerns:
//
//   - Config and Connect open a *pgxpool.Pool with retries and a per-session
//     lock_timeout so row locks on balances and coupons stay short.
//   - Migrate applies goose migrations from an fs.FS (see internal/db).
//   - WithTx, Conn and ContextWithTx carry a pgx.Tx through context.Context.
//     A store method written against Conn(ctx, pool) runs standalone or joins
//     the caller's transaction; a nested WithTx becomes a savepoint.
//   - Error classifiers (IsNotFoundError, IsDuplicateKeyError,
//     IsSerializationError, ...) turn *pgconn.PgError codes into domain checks.
//
// Usage:
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, db.Migrations, db.MigrationsDir, log); err != nil {
//		return err
//	}
//
//	err = pg.WithTx(ctx, pool, func(ctx context.Context, tx pgx.Tx) error {
//		if err := orders.Insert(ctx, o); err != nil { // runs in tx
//			return err
//		}
//		return coupons.Reserve(ctx, r) // same tx
//	})
package pg
