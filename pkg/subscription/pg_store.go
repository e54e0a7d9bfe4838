package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/seatshare/pkg/pg"
)

const subscriptionColumns = `id, user_id, product_id, order_id, status, base_price_cents, currency, term_months,
	discount_percent, paid_cents, auto_renew, renewal_count, starts_at, expires_at, last_renewed_at, created_at, updated_at`

// PGStore is a Store backed by PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (m *PGStore) Create(ctx context.Context, s *Subscription) error {
	if err := validate(s); err != nil {
		return err
	}
	_, err := pg.Conn(ctx, m.pool).Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		s.ID, s.UserID, s.ProductID, s.OrderID, s.Status, s.Snapshot.BasePriceCents, s.Snapshot.Currency,
		s.Snapshot.TermMonths, s.Snapshot.DiscountPercent, s.PaidCents, s.AutoRenew, s.RenewalCount,
		s.StartsAt, s.ExpiresAt, s.LastRenewedAt, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrSubscriptionAlreadyExists
		}
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

func (m *PGStore) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return m.getOne(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
}

func (m *PGStore) GetByOrder(ctx context.Context, orderID uuid.UUID) (*Subscription, error) {
	return m.getOne(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE order_id = $1`, orderID)
}

func (m *PGStore) HasActive(ctx context.Context, userID uuid.UUID, productID string) (bool, error) {
	var exists bool
	err := pg.Conn(ctx, m.pool).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM subscriptions WHERE user_id = $1 AND product_id = $2 AND status = 'active')`,
		userID, productID).Scan(&exists)
	if err != nil {
		return false, errors.Join(ErrStoreFailure, err)
	}
	return exists, nil
}

func (m *PGStore) ListDueForRenewal(ctx context.Context, before time.Time, limit int) ([]Subscription, error) {
	rows, err := pg.Conn(ctx, m.pool).Query(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status = 'active' AND auto_renew AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Subscription, error) {
		s, err := scanSubscription(row)
		if err != nil {
			return Subscription{}, err
		}
		return *s, nil
	})
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return out, nil
}

func (m *PGStore) ExtendPeriod(ctx context.Context, id uuid.UUID, expectedExpiresAt, newExpiresAt, renewedAt time.Time) (*Subscription, error) {
	s, err := scanSubscription(pg.Conn(ctx, m.pool).QueryRow(ctx, `
		UPDATE subscriptions
		SET expires_at = $3, renewal_count = renewal_count + 1, last_renewed_at = $4, updated_at = $4
		WHERE id = $1 AND status = 'active' AND expires_at = $2
		RETURNING `+subscriptionColumns,
		id, expectedExpiresAt, newExpiresAt, renewedAt.UTC()))
	if err == nil {
		return s, nil
	}
	if !pg.IsNotFoundError(err) {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	if _, err := m.Get(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrPeriodConflict
}

func (m *PGStore) ExpireLapsed(ctx context.Context, now time.Time) (int, error) {
	tag, err := pg.Conn(ctx, m.pool).Exec(ctx, `
		UPDATE subscriptions SET status = 'expired', updated_at = $1
		WHERE status = 'active' AND expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, errors.Join(ErrStoreFailure, err)
	}
	return int(tag.RowsAffected()), nil
}

func (m *PGStore) getOne(ctx context.Context, query string, arg any) (*Subscription, error) {
	s, err := scanSubscription(pg.Conn(ctx, m.pool).QueryRow(ctx, query, arg))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return s, nil
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var s Subscription
	err := row.Scan(
		&s.ID, &s.UserID, &s.ProductID, &s.OrderID, &s.Status, &s.Snapshot.BasePriceCents, &s.Snapshot.Currency,
		&s.Snapshot.TermMonths, &s.Snapshot.DiscountPercent, &s.PaidCents, &s.AutoRenew, &s.RenewalCount,
		&s.StartsAt, &s.ExpiresAt, &s.LastRenewedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
