package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Outbox records and resolves intents.
type Outbox struct {
	store       Store
	maxAttempts int
	now         func() time.Time
}

// New creates an Outbox on store. Intents default to cfg.MaxAttempts.
func New(store Store, cfg Config) (*Outbox, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = DefaultConfig().MaxAttempts
	}
	return &Outbox{store: store, maxAttempts: maxAttempts, now: time.Now}, nil
}

// RecordOption adjusts a recorded intent.
type RecordOption func(*Intent)

// After delays the first run by d.
func After(d time.Duration) RecordOption {
	return func(i *Intent) { i.RunAt = i.RunAt.Add(d) }
}

// At schedules the first run at t.
func At(t time.Time) RecordOption {
	return func(i *Intent) { i.RunAt = t.UTC() }
}

// WithMaxAttempts overrides the attempt budget.
func WithMaxAttempts(n int) RecordOption {
	return func(i *Intent) {
		if n > 0 {
			i.MaxAttempts = n
		}
	}
}

// WithID sets the intent id, so a producer can reference it before insert.
func WithID(id uuid.UUID) RecordOption {
	return func(i *Intent) { i.ID = id }
}

// Record stores a pending intent of kind with payload marshaled as JSON.
func (o *Outbox) Record(ctx context.Context, kind string, payload any, opts ...RecordOption) (*Intent, error) {
	if kind == "" {
		return nil, ErrEmptyKind
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Join(ErrPayloadMarshal, err)
	}

	now := o.now().UTC()
	i := &Intent{
		ID:          uuid.New(),
		Kind:        kind,
		Payload:     raw,
		Status:      StatusPending,
		MaxAttempts: o.maxAttempts,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, opt := range opts {
		opt(i)
	}
	if err := o.store.Add(ctx, i); err != nil {
		return nil, err
	}
	return i, nil
}

// Resolve marks an intent done because its work completed elsewhere.
func (o *Outbox) Resolve(ctx context.Context, id uuid.UUID) error {
	return o.store.Complete(ctx, id)
}

// Get returns an intent by id.
func (o *Outbox) Get(ctx context.Context, id uuid.UUID) (*Intent, error) {
	return o.store.Get(ctx, id)
}
