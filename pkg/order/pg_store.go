package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/seatshare/pkg/pg"
)

const orderColumns = `id, user_id, status, status_reason, currency, subtotal_cents, term_discount_cents,
	coupon_discount_cents, total_cents, coupon_id, payment_method, payment_reference, paid_at, created_at, updated_at`

// PGStore is a Store backed by PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) CreateWithItems(ctx context.Context, o *Order) error {
	return s.CreateWithItemsInTransaction(ctx, o, nil)
}

func (s *PGStore) CreateWithItemsInTransaction(ctx context.Context, o *Order, fn func(ctx context.Context) error) error {
	if err := prepare(o, time.Now().UTC()); err != nil {
		return err
	}
	return pg.WithTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			o.ID, o.UserID, o.Status, o.StatusReason, o.Currency, o.SubtotalCents, o.TermDiscountCents,
			o.CouponDiscountCents, o.TotalCents, o.CouponID, o.PaymentMethod, o.PaymentReference, o.PaidAt,
			o.CreatedAt, o.UpdatedAt,
		); err != nil {
			return errors.Join(ErrStoreFailure, err)
		}

		batch := &pgx.Batch{}
		for _, it := range o.Items {
			batch.Queue(`
				INSERT INTO order_items (id, order_id, product_id, term_months, base_price_cents, term_discount_percent, total_cents)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				it.ID, it.OrderID, it.ProductID, it.TermMonths, it.BasePriceCents, it.TermDiscountPercent, it.TotalCents)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Join(ErrStoreFailure, err)
		}

		if fn == nil {
			return nil
		}
		return fn(ctx)
	})
}

func (s *PGStore) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, reason string) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	db := pg.Conn(ctx, s.pool)
	tag, err := db.Exec(ctx, `
		UPDATE orders SET status = $2, status_reason = $3, updated_at = now()
		WHERE id = $1 AND status NOT IN ('fulfilled', 'cancelled')`,
		id, status, reason)
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current Status
	if err := db.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&current); err != nil {
		if pg.IsNotFoundError(err) {
			return ErrOrderNotFound
		}
		return errors.Join(ErrStoreFailure, err)
	}
	if current == status {
		return nil
	}
	return ErrTerminalStatus
}

func (s *PGStore) UpdatePayment(ctx context.Context, id uuid.UUID, reference string, paidAt time.Time) error {
	tag, err := pg.Conn(ctx, s.pool).Exec(ctx, `
		UPDATE orders SET payment_reference = $2, paid_at = $3, updated_at = now() WHERE id = $1`,
		id, reference, paidAt.UTC())
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	db := pg.Conn(ctx, s.pool)

	var o Order
	err := db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id).Scan(
		&o.ID, &o.UserID, &o.Status, &o.StatusReason, &o.Currency, &o.SubtotalCents, &o.TermDiscountCents,
		&o.CouponDiscountCents, &o.TotalCents, &o.CouponID, &o.PaymentMethod, &o.PaymentReference, &o.PaidAt,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrOrderNotFound
		}
		return nil, errors.Join(ErrStoreFailure, err)
	}

	rows, err := db.Query(ctx, `
		SELECT id, order_id, product_id, term_months, base_price_cents, term_discount_percent, total_cents
		FROM order_items WHERE order_id = $1 ORDER BY product_id`, id)
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	o.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		var it Item
		err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.TermMonths, &it.BasePriceCents, &it.TermDiscountPercent, &it.TotalCents)
		return it, err
	})
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return &o, nil
}

func (s *PGStore) HasCompletedOrder(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := pg.Conn(ctx, s.pool).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM orders WHERE user_id = $1 AND status IN ('in_process', 'fulfilled'))`,
		userID).Scan(&exists)
	if err != nil {
		return false, errors.Join(ErrStoreFailure, err)
	}
	return exists, nil
}
