package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists intents.
type Store interface {
	// Add inserts a pending intent, joining a transaction carried in ctx.
	Add(ctx context.Context, i *Intent) error

	Get(ctx context.Context, id uuid.UUID) (*Intent, error)

	// Claim leases up to limit due intents to workerID until now+lease and
	// increments their attempt counters. Pending intents are due at RunAt;
	// processing intents are due once their lease expired.
	Claim(ctx context.Context, workerID uuid.UUID, now time.Time, lease time.Duration, limit int) ([]Intent, error)

	// Complete marks a pending or processing intent done. Completing a done
	// intent is a no-op.
	Complete(ctx context.Context, id uuid.UUID) error

	// Retry returns an intent leased by workerID to pending with a new RunAt.
	Retry(ctx context.Context, id, workerID uuid.UUID, runAt time.Time, lastErr string) error

	// Bury marks an intent leased by workerID dead.
	Bury(ctx context.Context, id, workerID uuid.UUID, lastErr string) error
}
