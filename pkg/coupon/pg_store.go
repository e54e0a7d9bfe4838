package coupon

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/seatshare/pkg/pg"
)

const couponColumns = `id, code, percent_off, scope, product_id, category, term_months, status,
	starts_at, ends_at, max_redemptions, bound_user_id, first_order_only, created_at, updated_at`

// PGStore is a Store backed by PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) CreateCoupon(ctx context.Context, c *Coupon) error {
	_, err := pg.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO coupons (`+couponColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		c.ID, c.Code, c.PercentOff, c.Scope, c.ProductID, c.Category, c.TermMonths, c.Status,
		c.StartsAt, c.EndsAt, c.MaxRedemptions, c.BoundUserID, c.FirstOrderOnly, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrCodeTaken
		}
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

func (s *PGStore) GetCoupon(ctx context.Context, id uuid.UUID) (*Coupon, error) {
	return s.getCoupon(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id)
}

func (s *PGStore) GetCouponByCode(ctx context.Context, code string) (*Coupon, error) {
	return s.getCoupon(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code)
}

func (s *PGStore) SetCouponStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := pg.Conn(ctx, s.pool).Exec(ctx,
		`UPDATE coupons SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCouponNotFound
	}
	return nil
}

func (s *PGStore) ActiveRedemptions(ctx context.Context, couponID, userID uuid.UUID) (int, bool, error) {
	var (
		count int
		held  bool
	)
	err := pg.Conn(ctx, s.pool).QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(BOOL_OR(user_id = $2), FALSE)
		FROM coupon_redemptions
		WHERE coupon_id = $1 AND status IN ('reserved', 'redeemed')`,
		couponID, userID).Scan(&count, &held)
	if err != nil {
		return 0, false, errors.Join(ErrStoreFailure, err)
	}
	return count, held, nil
}

func (s *PGStore) Reserve(ctx context.Context, r *Redemption) error {
	return pg.WithTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		var (
			status Status
			limit  int
		)
		err := tx.QueryRow(ctx,
			`SELECT status, max_redemptions FROM coupons WHERE id = $1 FOR UPDATE`, r.CouponID,
		).Scan(&status, &limit)
		if err != nil {
			if pg.IsNotFoundError(err) {
				return reject(ReasonCouponInvalid, "unknown coupon")
			}
			return errors.Join(ErrStoreFailure, err)
		}
		if status != StatusActive {
			return reject(ReasonCouponInvalid, "coupon is not active")
		}

		// Counted under the coupon row lock; no other reservation can interleave.
		var (
			count int
			held  bool
		)
		if err := tx.QueryRow(ctx, `
			SELECT COUNT(*), COALESCE(BOOL_OR(user_id = $2), FALSE)
			FROM coupon_redemptions
			WHERE coupon_id = $1 AND status IN ('reserved', 'redeemed')`,
			r.CouponID, r.UserID,
		).Scan(&count, &held); err != nil {
			return errors.Join(ErrStoreFailure, err)
		}
		if held {
			return ErrAlreadyRedeemed
		}
		if limit != Unlimited && count >= limit {
			return ErrMaxRedemptions
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO coupon_redemptions (id, coupon_id, user_id, order_id, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			r.ID, r.CouponID, r.UserID, r.OrderID, r.Status, r.CreatedAt, r.UpdatedAt,
		); err != nil {
			if pg.IsDuplicateKeyError(err) {
				return ErrAlreadyRedeemed
			}
			return errors.Join(ErrStoreFailure, err)
		}
		return nil
	})
}

func (s *PGStore) TransitionForOrder(ctx context.Context, orderID uuid.UUID, from, to RedemptionStatus) (int, error) {
	tag, err := pg.Conn(ctx, s.pool).Exec(ctx, `
		UPDATE coupon_redemptions SET status = $3, updated_at = now()
		WHERE order_id = $1 AND status = $2`,
		orderID, from, to)
	if err != nil {
		return 0, errors.Join(ErrStoreFailure, err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PGStore) RedemptionForOrder(ctx context.Context, orderID uuid.UUID) (*Redemption, error) {
	var r Redemption
	err := pg.Conn(ctx, s.pool).QueryRow(ctx, `
		SELECT id, coupon_id, user_id, order_id, status, created_at, updated_at
		FROM coupon_redemptions WHERE order_id = $1
		ORDER BY created_at DESC LIMIT 1`, orderID,
	).Scan(&r.ID, &r.CouponID, &r.UserID, &r.OrderID, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrRedemptionNotFound
		}
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return &r, nil
}

func (s *PGStore) getCoupon(ctx context.Context, query string, arg any) (*Coupon, error) {
	var c Coupon
	err := pg.Conn(ctx, s.pool).QueryRow(ctx, query, arg).Scan(
		&c.ID, &c.Code, &c.PercentOff, &c.Scope, &c.ProductID, &c.Category, &c.TermMonths, &c.Status,
		&c.StartsAt, &c.EndsAt, &c.MaxRedemptions, &c.BoundUserID, &c.FirstOrderOnly, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrCouponNotFound
		}
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return &c, nil
}
