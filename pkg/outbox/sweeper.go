package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/seatshare/pkg/logger"
)

// Sweeper executes due intents with their registered handlers.
type Sweeper struct {
	store    Store
	cfg      Config
	workerID uuid.UUID
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewSweeper creates a sweeper on store. Zero config fields fall back to
// DefaultConfig.
func NewSweeper(store Store, cfg Config, opts ...SweeperOption) (*Sweeper, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Lease <= 0 {
		cfg.Lease = def.Lease
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = def.HandlerTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}

	s := &Sweeper{
		store:    store,
		cfg:      cfg,
		workerID: uuid.New(),
		logger:   slog.Default(),
		now:      time.Now,
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("outbox"), slog.String("worker_id", s.workerID.String()))
	return s, nil
}

// Register adds handlers. Each kind can be registered once.
func (s *Sweeper) Register(handlers ...Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range handlers {
		if h == nil {
			continue
		}
		if _, exists := s.handlers[h.Kind()]; exists {
			return fmt.Errorf("%w: %s", ErrHandlerAlreadyRegistered, h.Kind())
		}
		s.handlers[h.Kind()] = h
	}
	return nil
}

// Run sweeps immediately, which recovers intents left by a crashed process,
// and then every PollInterval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "outbox sweeper started", slog.Duration("interval", s.cfg.PollInterval))

	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.ErrorContext(ctx, "recovery sweep failed", logger.Error(err))
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(context.WithoutCancel(ctx), "outbox sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.ErrorContext(ctx, "outbox sweep failed", logger.Error(err))
			}
		}
	}
}

// RunOnce claims one batch of due intents and processes it.
func (s *Sweeper) RunOnce(ctx context.Context) (Stats, error) {
	intents, err := s.store.Claim(ctx, s.workerID, s.now().UTC(), s.cfg.Lease, s.cfg.BatchSize)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Claimed: len(intents)}
	if len(intents) == 0 {
		return stats, nil
	}
	s.metrics.claim(len(intents))

	var (
		mu   sync.Mutex
		errs []error
	)
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)
	for _, intent := range intents {
		g.Go(func() error {
			result, err := s.process(ctx, intent)
			mu.Lock()
			defer mu.Unlock()
			switch result {
			case StatusDone:
				stats.Completed++
			case StatusDead:
				stats.Dead++
			case StatusPending:
				stats.Retried++
			}
			if err != nil {
				errs = append(errs, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return stats, errors.Join(errs...)
}

// process runs one intent and records its outcome. The returned error is a
// store failure; handler failures are recorded, not returned.
func (s *Sweeper) process(ctx context.Context, intent Intent) (result Status, err error) {
	log := s.logger.With(logger.IntentID(intent.ID), slog.String("kind", intent.Kind), logger.Attempt(intent.Attempts))
	start := s.now()

	s.mu.RLock()
	h, ok := s.handlers[intent.Kind]
	s.mu.RUnlock()
	if !ok {
		log.ErrorContext(ctx, "no handler registered for intent kind")
		s.metrics.observe(intent.Kind, "dead")
		return StatusDead, s.store.Bury(ctx, intent.ID, s.workerID, ErrHandlerNotFound.Error())
	}

	handlerErr := s.invoke(ctx, h, intent)
	if handlerErr == nil {
		if err := s.store.Complete(ctx, intent.ID); err != nil {
			return "", err
		}
		log.InfoContext(ctx, "intent completed", logger.Duration(s.now().Sub(start)))
		s.metrics.observe(intent.Kind, "done")
		return StatusDone, nil
	}

	if errors.Is(handlerErr, ErrPermanent) || intent.Exhausted() {
		log.ErrorContext(ctx, "intent is dead", logger.Error(handlerErr), slog.Int("max_attempts", intent.MaxAttempts))
		s.metrics.observe(intent.Kind, "dead")
		return StatusDead, s.store.Bury(ctx, intent.ID, s.workerID, handlerErr.Error())
	}

	runAt := s.now().UTC().Add(s.cfg.Backoff(intent.Attempts))
	log.WarnContext(ctx, "intent failed, retry scheduled", logger.Error(handlerErr), slog.Time("run_at", runAt))
	s.metrics.observe(intent.Kind, "retry")
	return StatusPending, s.store.Retry(ctx, intent.ID, s.workerID, runAt, handlerErr.Error())
}

// invoke calls the handler detached from the sweep context so shutdown lets
// it finish, bounded by HandlerTimeout. Panics count as failures.
func (s *Sweeper) invoke(ctx context.Context, h Handler, intent Intent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler: %v", r)
		}
	}()
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.HandlerTimeout)
	defer cancel()
	return h.Handle(hctx, intent.Payload)
}
