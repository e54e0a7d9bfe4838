package outbox

import (
	"bytes"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	intents map[uuid.UUID]*Intent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{intents: make(map[uuid.UUID]*Intent)}
}

func (m *MemoryStore) Add(_ context.Context, i *Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *i
	cp.Payload = bytes.Clone(i.Payload)
	m.intents[i.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.intents[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	cp := *i
	return &cp, nil
}

func (m *MemoryStore) Claim(_ context.Context, workerID uuid.UUID, now time.Time, lease time.Duration, limit int) ([]Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*Intent
	for _, i := range m.intents {
		switch {
		case i.Status == StatusPending && !i.RunAt.After(now):
			due = append(due, i)
		case i.Status == StatusProcessing && i.LockedUntil != nil && i.LockedUntil.Before(now):
			due = append(due, i)
		}
	}
	slices.SortFunc(due, func(a, b *Intent) int { return a.RunAt.Compare(b.RunAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	until := now.Add(lease)
	out := make([]Intent, 0, len(due))
	for _, i := range due {
		i.Status = StatusProcessing
		i.Attempts++
		i.LockedUntil = &until
		w := workerID
		i.LockedBy = &w
		i.UpdatedAt = now
		out = append(out, *i)
	}
	return out, nil
}

func (m *MemoryStore) Complete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.intents[id]
	if !ok {
		return ErrIntentNotFound
	}
	if i.Status == StatusDone || i.Status == StatusDead {
		return nil
	}
	i.Status = StatusDone
	i.LockedUntil, i.LockedBy = nil, nil
	i.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) Retry(_ context.Context, id, workerID uuid.UUID, runAt time.Time, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.leasedLocked(id, workerID)
	if err != nil {
		return err
	}
	i.Status = StatusPending
	i.RunAt = runAt
	i.LastError = &lastErr
	i.LockedUntil, i.LockedBy = nil, nil
	i.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) Bury(_ context.Context, id, workerID uuid.UUID, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.leasedLocked(id, workerID)
	if err != nil {
		return err
	}
	i.Status = StatusDead
	i.LastError = &lastErr
	i.LockedUntil, i.LockedBy = nil, nil
	i.UpdatedAt = time.Now().UTC()
	return nil
}

// ByStatus lists intents in status, oldest first.
func (m *MemoryStore) ByStatus(status Status) []Intent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Intent
	for _, i := range m.intents {
		if i.Status == status {
			out = append(out, *i)
		}
	}
	slices.SortFunc(out, func(a, b Intent) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

func (m *MemoryStore) leasedLocked(id, workerID uuid.UUID) (*Intent, error) {
	i, ok := m.intents[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	if i.Status != StatusProcessing || i.LockedBy == nil || *i.LockedBy != workerID {
		return nil, ErrLeaseLost
	}
	return i, nil
}
