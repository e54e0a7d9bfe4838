package coupon

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. A per-coupon mutex stands in for the
// coupon row lock taken by PGStore.Reserve.
type MemoryStore struct {
	mu          sync.RWMutex
	locks       map[uuid.UUID]*sync.Mutex
	coupons     map[uuid.UUID]Coupon
	byCode      map[string]uuid.UUID
	redemptions []Redemption
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:   make(map[uuid.UUID]*sync.Mutex),
		coupons: make(map[uuid.UUID]Coupon),
		byCode:  make(map[string]uuid.UUID),
	}
}

func (s *MemoryStore) CreateCoupon(_ context.Context, c *Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byCode[c.Code]; taken {
		return ErrCodeTaken
	}
	s.coupons[c.ID] = *c
	s.byCode[c.Code] = c.ID
	s.locks[c.ID] = &sync.Mutex{}
	return nil
}

func (s *MemoryStore) GetCoupon(_ context.Context, id uuid.UUID) (*Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.coupons[id]
	if !ok {
		return nil, ErrCouponNotFound
	}
	return &c, nil
}

func (s *MemoryStore) GetCouponByCode(_ context.Context, code string) (*Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCode[code]
	if !ok {
		return nil, ErrCouponNotFound
	}
	c := s.coupons[id]
	return &c, nil
}

func (s *MemoryStore) SetCouponStatus(_ context.Context, id uuid.UUID, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[id]
	if !ok {
		return ErrCouponNotFound
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	s.coupons[id] = c
	return nil
}

func (s *MemoryStore) ActiveRedemptions(_ context.Context, couponID, userID uuid.UUID) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count, held := s.activeLocked(couponID, userID)
	return count, held, nil
}

func (s *MemoryStore) Reserve(ctx context.Context, r *Redemption) error {
	s.mu.RLock()
	lock, ok := s.locks[r.CouponID]
	s.mu.RUnlock()
	if !ok {
		return reject(ReasonCouponInvalid, "unknown coupon")
	}

	lock.Lock()
	defer lock.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.coupons[r.CouponID]
	if c.Status != StatusActive {
		return reject(ReasonCouponInvalid, "coupon is not active")
	}
	count, held := s.activeLocked(r.CouponID, r.UserID)
	if held {
		return ErrAlreadyRedeemed
	}
	if !c.HasCapacity(count) {
		return ErrMaxRedemptions
	}
	s.redemptions = append(s.redemptions, *r)
	return nil
}

func (s *MemoryStore) TransitionForOrder(_ context.Context, orderID uuid.UUID, from, to RedemptionStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.redemptions {
		if s.redemptions[i].OrderID == orderID && s.redemptions[i].Status == from {
			s.redemptions[i].Status = to
			s.redemptions[i].UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) RedemptionForOrder(_ context.Context, orderID uuid.UUID) (*Redemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.redemptions) - 1; i >= 0; i-- {
		if s.redemptions[i].OrderID == orderID {
			r := s.redemptions[i]
			return &r, nil
		}
	}
	return nil, ErrRedemptionNotFound
}

func (s *MemoryStore) activeLocked(couponID, userID uuid.UUID) (int, bool) {
	count, held := 0, false
	for _, r := range s.redemptions {
		if r.CouponID != couponID || r.Status == RedemptionVoided {
			continue
		}
		count++
		if r.UserID == userID {
			held = true
		}
	}
	return count, held
}
