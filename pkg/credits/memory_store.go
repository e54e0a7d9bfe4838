package credits

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. A per-user mutex plays the role of the
// balance row lock.
type MemoryStore struct {
	mu       sync.RWMutex
	locks    map[uuid.UUID]*sync.Mutex
	balances map[uuid.UUID]Balance
	txs      []Transaction
	index    map[uuid.UUID]int
	refunds  map[uuid.UUID]uuid.UUID // original id -> refund id
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:    make(map[uuid.UUID]*sync.Mutex),
		balances: make(map[uuid.UUID]Balance),
		index:    make(map[uuid.UUID]int),
		refunds:  make(map[uuid.UUID]uuid.UUID),
		now:      time.Now,
	}
}

func (s *MemoryStore) userLock(userID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *MemoryStore) Apply(ctx context.Context, userID uuid.UUID, currency string, build BuildFunc) (*Transaction, *Balance, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	current, ok := s.balances[userID]
	s.mu.RUnlock()
	if !ok {
		current = Balance{UserID: userID, Currency: currency, LastUpdated: s.now().UTC()}
	}
	if current.Currency != currency {
		return nil, nil, ErrCurrencyMismatch
	}

	tx, err := build(current)
	if err != nil {
		return nil, nil, err
	}

	next := current
	next.TotalBalance += tx.Amount
	next.AvailableBalance += tx.Amount
	next.LastUpdated = tx.CreatedAt
	if next.AvailableBalance < 0 || next.TotalBalance < 0 {
		return nil, nil, ErrInsufficientCredits
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.Type == TypeRefund && tx.OriginalTransactionID != nil {
		if _, dup := s.refunds[*tx.OriginalTransactionID]; dup {
			return nil, nil, ErrAlreadyRefunded
		}
		s.refunds[*tx.OriginalTransactionID] = tx.ID
	}
	stored := *tx
	stored.Metadata = maps.Clone(tx.Metadata)
	s.index[stored.ID] = len(s.txs)
	s.txs = append(s.txs, stored)
	s.balances[userID] = next

	out := next
	return tx, &out, nil
}

func (s *MemoryStore) GetBalance(_ context.Context, userID uuid.UUID) (*Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.balances[userID]
	if !ok {
		return &Balance{UserID: userID}, nil
	}
	return &b, nil
}

func (s *MemoryStore) GetTransaction(_ context.Context, id uuid.UUID) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	tx := s.txs[i]
	return &tx, nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, userID uuid.UUID, opts ListOpts) ([]Transaction, error) {
	opts = opts.normalized()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Transaction
	skipped := 0
	for i := len(s.txs) - 1; i >= 0 && len(out) < opts.Limit; i-- {
		tx := s.txs[i]
		if tx.UserID != userID {
			continue
		}
		if len(opts.Types) > 0 && !slices.Contains(opts.Types, tx.Type) {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (s *MemoryStore) FindRefundOf(_ context.Context, originalID uuid.UUID) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.refunds[originalID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	tx := s.txs[s.index[id]]
	return &tx, nil
}

func (s *MemoryStore) FindByReference(_ context.Context, reference string) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Transaction
	for _, tx := range s.txs {
		if reference != "" && tx.Reference == reference {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *MemoryStore) SumAmounts(_ context.Context, userID uuid.UUID) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total, count int64
	for _, tx := range s.txs {
		if tx.UserID == userID {
			total += tx.Amount
			count++
		}
	}
	return total, count, nil
}
