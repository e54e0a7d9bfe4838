package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/seatshare/pkg/pg"
)

const intentColumns = `id, kind, payload, status, attempts, max_attempts, last_error, run_at,
	locked_until, locked_by, created_at, updated_at`

// PGStore is a Store backed by PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Add(ctx context.Context, i *Intent) error {
	_, err := pg.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO outbox_intents (`+intentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		i.ID, i.Kind, i.Payload, i.Status, i.Attempts, i.MaxAttempts, i.LastError, i.RunAt,
		i.LockedUntil, i.LockedBy, i.CreatedAt, i.UpdatedAt)
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (*Intent, error) {
	rows, err := pg.Conn(ctx, s.pool).Query(ctx, `SELECT `+intentColumns+` FROM outbox_intents WHERE id = $1`, id)
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	i, err := pgx.CollectExactlyOneRow(rows, scanIntent)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrIntentNotFound
		}
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return &i, nil
}

func (s *PGStore) Claim(ctx context.Context, workerID uuid.UUID, now time.Time, lease time.Duration, limit int) ([]Intent, error) {
	rows, err := pg.Conn(ctx, s.pool).Query(ctx, `
		UPDATE outbox_intents
		SET status = 'processing', attempts = attempts + 1, locked_until = $2, locked_by = $3, updated_at = $1
		WHERE id IN (
			SELECT id FROM outbox_intents
			WHERE (status = 'pending' AND run_at <= $1)
			   OR (status = 'processing' AND locked_until < $1)
			ORDER BY run_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+intentColumns,
		now, now.Add(lease), workerID, limit)
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	out, err := pgx.CollectRows(rows, scanIntent)
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return out, nil
}

func (s *PGStore) Complete(ctx context.Context, id uuid.UUID) error {
	db := pg.Conn(ctx, s.pool)
	tag, err := db.Exec(ctx, `
		UPDATE outbox_intents SET status = 'done', locked_until = NULL, locked_by = NULL, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'processing')`, id)
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	_, err = s.Get(ctx, id)
	return err
}

func (s *PGStore) Retry(ctx context.Context, id, workerID uuid.UUID, runAt time.Time, lastErr string) error {
	return s.release(ctx, `
		UPDATE outbox_intents
		SET status = 'pending', run_at = $3, last_error = $4, locked_until = NULL, locked_by = NULL, updated_at = now()
		WHERE id = $1 AND status = 'processing' AND locked_by = $2`,
		id, workerID, runAt, lastErr)
}

func (s *PGStore) Bury(ctx context.Context, id, workerID uuid.UUID, lastErr string) error {
	return s.release(ctx, `
		UPDATE outbox_intents
		SET status = 'dead', last_error = $3, locked_until = NULL, locked_by = NULL, updated_at = now()
		WHERE id = $1 AND status = 'processing' AND locked_by = $2`,
		id, workerID, lastErr)
}

func (s *PGStore) release(ctx context.Context, query string, id uuid.UUID, args ...any) error {
	tag, err := pg.Conn(ctx, s.pool).Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return ErrLeaseLost
	}
	return nil
}

func scanIntent(row pgx.CollectableRow) (Intent, error) {
	var i Intent
	err := row.Scan(&i.ID, &i.Kind, &i.Payload, &i.Status, &i.Attempts, &i.MaxAttempts, &i.LastError, &i.RunAt,
		&i.LockedUntil, &i.LockedBy, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}
