package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status of an intent.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusDead       Status = "dead"
)

// Intent is a unit of deferred work.
type Intent struct {
	ID          uuid.UUID       `json:"id"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   *string         `json:"last_error,omitempty"`
	RunAt       time.Time       `json:"run_at"`
	LockedUntil *time.Time      `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID      `json:"locked_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Exhausted reports whether no retry is left after the current attempt.
func (i *Intent) Exhausted() bool {
	return i.Attempts >= i.MaxAttempts
}

// Stats summarizes one sweep.
type Stats struct {
	Claimed   int
	Completed int
	Retried   int
	Dead      int
}
