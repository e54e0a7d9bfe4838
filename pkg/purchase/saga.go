package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrymomot/seatshare/pkg/logger"
	"github.com/dmitrymomot/seatshare/pkg/statemachine"
)

// compensationTimeout bounds the undo work of one saga. Undo runs on a fresh
// deadline so that a saga which timed out mid-step can still compensate.
const compensationTimeout = 15 * time.Second

type compensation struct {
	step string
	fn   func(ctx context.Context, reason string) error
}

// run is the state of one saga execution.
type run struct {
	o       *Orchestrator
	machine *statemachine.Machine[State, Event]
	log     *slog.Logger

	// orderID is set once the order row exists, guardID once its
	// reconcile guard is recorded.
	orderID uuid.UUID
	guardID uuid.UUID

	mu            sync.Mutex
	compensations []compensation
}

func (o *Orchestrator) newRun(initial State, log *slog.Logger) *run {
	r := &run{o: o, log: log}
	r.machine = newMachine(initial, func(ctx context.Context, step statemachine.Step[State, Event]) {
		r.log.DebugContext(ctx, "saga transition",
			slog.String("from", string(step.From)), logger.SagaState(string(step.To)), slog.String("event", string(step.Event)))
	})
	return r
}

// fire applies a saga event. The transition table is static, so a refused
// transition is a programming error and surfaces as internal_error.
func (r *run) fire(ctx context.Context, e Event) error {
	if err := r.machine.Fire(ctx, e); err != nil {
		return internal("saga transition refused", err)
	}
	return nil
}

func (r *run) state() State { return r.machine.Current() }

// addCompensation pushes fn so that the most recent step is undone first.
func (r *run) addCompensation(step string, fn func(ctx context.Context, reason string) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compensations = append([]compensation{{step: step, fn: fn}}, r.compensations...)
}

// compensate runs every registered undo step, continuing past failures, and
// returns their joined errors.
func (r *run) compensate(ctx context.Context, reason string) error {
	r.mu.Lock()
	comps := r.compensations
	r.compensations = nil
	r.mu.Unlock()
	if len(comps) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	r.log.InfoContext(ctx, "compensating purchase", slog.Int("steps", len(comps)), logger.Reason(reason))

	var errs []error
	for _, c := range comps {
		err := r.step(ctx, "compensate."+c.step, func(ctx context.Context) error { return c.fn(ctx, reason) })
		r.o.metrics.compensation(c.step, err)
		if err != nil {
			r.log.ErrorContext(ctx, "compensation step failed", slog.String("step", c.step), logger.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", c.step, err))
		}
	}
	return errors.Join(errs...)
}

// step runs fn inside a span named after the saga step.
func (r *run) step(ctx context.Context, name string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := r.o.tracer.Start(ctx, "purchase."+name, trace.WithAttributes(attrs...))
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// fail cancels the saga: it undoes completed steps, moves the machine to
// cancelled and attaches any undo error to f. When undo failed an immediate
// reconcile intent is queued for the order. The guard is resolved only for
// definitive business rejections; after an infrastructure failure a write
// may have landed despite the error, so the guard stays to check.
func (r *run) fail(ctx context.Context, f *Failure) *Failure {
	f.OrderID = r.orderID
	cerr := r.compensate(ctx, string(f.Code))
	switch {
	case cerr != nil:
		f.CompensationErr = cerr
		f.Kind = KindCompensation
		if r.orderID != uuid.Nil {
			r.o.enqueueReconcile(ctx, r.orderID, r.log)
		}
	case r.guardID != uuid.Nil && f.Kind != KindInfrastructure:
		r.o.resolveGuard(ctx, r.guardID, r.log)
	}
	if err := r.machine.Fire(ctx, EventCancel); err != nil {
		r.log.WarnContext(ctx, "saga cancel transition refused", logger.Error(err))
	}
	return f
}
