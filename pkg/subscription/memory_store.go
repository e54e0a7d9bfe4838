package subscription

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and local runs.
type MemoryStore struct {
	mu   sync.Mutex
	subs map[uuid.UUID]Subscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[uuid.UUID]Subscription)}
}

func (m *MemoryStore) Create(_ context.Context, s *Subscription) error {
	if err := validate(s); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.subs {
		if existing.OrderID == s.OrderID {
			return ErrSubscriptionAlreadyExists
		}
		if s.IsActive() && existing.IsActive() && existing.UserID == s.UserID && existing.ProductID == s.ProductID {
			return ErrSubscriptionAlreadyExists
		}
	}
	m.subs[s.ID] = *s
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return &s, nil
}

func (m *MemoryStore) GetByOrder(_ context.Context, orderID uuid.UUID) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.OrderID == orderID {
			return &s, nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (m *MemoryStore) HasActive(_ context.Context, userID uuid.UUID, productID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.IsActive() && s.UserID == userID && s.ProductID == productID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) ListDueForRenewal(_ context.Context, before time.Time, limit int) ([]Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Subscription
	for _, s := range m.subs {
		if s.IsActive() && s.AutoRenew && s.ExpiresAt.Before(before) {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b Subscription) int { return a.ExpiresAt.Compare(b.ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ExtendPeriod(_ context.Context, id uuid.UUID, expectedExpiresAt, newExpiresAt, renewedAt time.Time) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	if !s.IsActive() || !s.ExpiresAt.Equal(expectedExpiresAt) {
		return nil, ErrPeriodConflict
	}
	renewed := renewedAt.UTC()
	s.ExpiresAt = newExpiresAt.UTC()
	s.RenewalCount++
	s.LastRenewedAt = &renewed
	s.UpdatedAt = renewed
	m.subs[id] = s
	return &s, nil
}

func (m *MemoryStore) ExpireLapsed(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.subs {
		if s.IsLapsedAt(now) {
			s.Status = StatusExpired
			s.UpdatedAt = now.UTC()
			m.subs[id] = s
			n++
		}
	}
	return n, nil
}
