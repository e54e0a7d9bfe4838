package credits

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/seatshare/pkg/pg"
)

const transactionColumns = `id, user_id, type, amount, balance_before, balance_after, currency,
	description, reference, original_transaction_id, metadata, created_at`

// PGStore is a Store backed by PostgreSQL. Apply joins a transaction carried
// in ctx (see pg.WithTx) or opens its own.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Apply(ctx context.Context, userID uuid.UUID, currency string, build BuildFunc) (*Transaction, *Balance, error) {
	var (
		out  *Transaction
		next Balance
	)
	err := pg.WithTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO credit_balances (user_id, currency) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
			userID, currency,
		); err != nil {
			return storeErr(err)
		}

		current, err := scanBalance(tx.QueryRow(ctx, `
			SELECT user_id, total_balance, available_balance, pending_balance, currency, last_updated
			FROM credit_balances WHERE user_id = $1 FOR UPDATE`, userID))
		if err != nil {
			return storeErr(err)
		}
		if current.Currency != currency {
			return ErrCurrencyMismatch
		}

		entry, err := build(*current)
		if err != nil {
			return err
		}

		next = *current
		next.TotalBalance += entry.Amount
		next.AvailableBalance += entry.Amount
		next.LastUpdated = entry.CreatedAt
		if next.AvailableBalance < 0 || next.TotalBalance < 0 {
			return ErrInsufficientCredits
		}

		md := entry.Metadata
		if md == nil {
			md = Metadata{}
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO credit_transactions (`+transactionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			entry.ID, entry.UserID, entry.Type, entry.Amount, entry.BalanceBefore, entry.BalanceAfter,
			entry.Currency, entry.Description, entry.Reference, entry.OriginalTransactionID, md, entry.CreatedAt,
		); err != nil {
			if pg.IsDuplicateKeyError(err) && pg.ConstraintName(err) == "credit_transactions_single_refund_idx" {
				return ErrAlreadyRefunded
			}
			return storeErr(err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE credit_balances
			SET total_balance = $2, available_balance = $3, last_updated = $4
			WHERE user_id = $1`,
			userID, next.TotalBalance, next.AvailableBalance, next.LastUpdated,
		); err != nil {
			return storeErr(err)
		}

		out = entry
		return nil
	})
	if err != nil {
		if errors.Is(err, pg.ErrFailedToBeginTx) || errors.Is(err, pg.ErrFailedToCommitTx) {
			return nil, nil, storeErr(err)
		}
		return nil, nil, err
	}
	return out, &next, nil
}

func (s *PGStore) GetBalance(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	b, err := scanBalance(pg.Conn(ctx, s.pool).QueryRow(ctx, `
		SELECT user_id, total_balance, available_balance, pending_balance, currency, last_updated
		FROM credit_balances WHERE user_id = $1`, userID))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return &Balance{UserID: userID}, nil
		}
		return nil, storeErr(err)
	}
	return b, nil
}

func (s *PGStore) GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	tx, err := scanTransaction(pg.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM credit_transactions WHERE id = $1`, id))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrTransactionNotFound
		}
		return nil, storeErr(err)
	}
	return tx, nil
}

func (s *PGStore) ListTransactions(ctx context.Context, userID uuid.UUID, opts ListOpts) ([]Transaction, error) {
	opts = opts.normalized()
	var types []string
	for _, t := range opts.Types {
		types = append(types, string(t))
	}

	rows, err := pg.Conn(ctx, s.pool).Query(ctx, `
		SELECT `+transactionColumns+` FROM credit_transactions
		WHERE user_id = $1 AND (COALESCE(cardinality($2::text[]), 0) = 0 OR type = ANY($2::text[]))
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`,
		userID, types, opts.Limit, opts.Offset)
	if err != nil {
		return nil, storeErr(err)
	}
	return collectTransactions(rows)
}

func (s *PGStore) FindRefundOf(ctx context.Context, originalID uuid.UUID) (*Transaction, error) {
	tx, err := scanTransaction(pg.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM credit_transactions
		WHERE original_transaction_id = $1 AND type = 'refund'`, originalID))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrTransactionNotFound
		}
		return nil, storeErr(err)
	}
	return tx, nil
}

func (s *PGStore) FindByReference(ctx context.Context, reference string) ([]Transaction, error) {
	if reference == "" {
		return nil, nil
	}
	rows, err := pg.Conn(ctx, s.pool).Query(ctx,
		`SELECT `+transactionColumns+` FROM credit_transactions
		WHERE reference = $1 ORDER BY created_at, id`, reference)
	if err != nil {
		return nil, storeErr(err)
	}
	return collectTransactions(rows)
}

func (s *PGStore) SumAmounts(ctx context.Context, userID uuid.UUID) (int64, int64, error) {
	var total, count int64
	err := pg.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::bigint, COUNT(*) FROM credit_transactions WHERE user_id = $1`,
		userID).Scan(&total, &count)
	if err != nil {
		return 0, 0, storeErr(err)
	}
	return total, count, nil
}

func scanBalance(row pgx.Row) (*Balance, error) {
	var b Balance
	if err := row.Scan(&b.UserID, &b.TotalBalance, &b.AvailableBalance, &b.PendingBalance, &b.Currency, &b.LastUpdated); err != nil {
		return nil, err
	}
	return &b, nil
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var t Transaction
	if err := row.Scan(
		&t.ID, &t.UserID, &t.Type, &t.Amount, &t.BalanceBefore, &t.BalanceAfter, &t.Currency,
		&t.Description, &t.Reference, &t.OriginalTransactionID, &t.Metadata, &t.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTransactions(rows pgx.Rows) ([]Transaction, error) {
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

func storeErr(err error) error {
	if errors.Is(err, ErrStoreFailure) {
		return err
	}
	return errors.Join(ErrStoreFailure, err)
}
