package order

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and local runs.
type MemoryStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[uuid.UUID]Order)}
}

func (s *MemoryStore) CreateWithItems(_ context.Context, o *Order) error {
	if err := prepare(o, time.Now().UTC()); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = clone(o)
	return nil
}

func (s *MemoryStore) CreateWithItemsInTransaction(ctx context.Context, o *Order, fn func(ctx context.Context) error) error {
	if err := s.CreateWithItems(ctx, o); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		s.mu.Lock()
		delete(s.orders, o.ID)
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, status Status, reason string) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	if o.Status.IsTerminal() {
		if o.Status == status {
			return nil
		}
		return ErrTerminalStatus
	}
	o.Status = status
	o.StatusReason = reason
	o.UpdatedAt = time.Now().UTC()
	s.orders[id] = o
	return nil
}

func (s *MemoryStore) UpdatePayment(_ context.Context, id uuid.UUID, reference string, paidAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.PaymentReference = reference
	paid := paidAt.UTC()
	o.PaidAt = &paid
	o.UpdatedAt = time.Now().UTC()
	s.orders[id] = o
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	out := clone(&o)
	return &out, nil
}

func (s *MemoryStore) HasCompletedOrder(_ context.Context, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.UserID == userID && o.HasCompletedPayment() {
			return true, nil
		}
	}
	return false, nil
}

func clone(o *Order) Order {
	out := *o
	out.Items = slices.Clone(o.Items)
	return out
}
