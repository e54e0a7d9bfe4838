package analytics

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event names.
const (
	EventPurchaseCompleted = "purchase_completed"
	EventPurchaseFailed    = "purchase_failed"
	EventRenewalCompleted  = "renewal_completed"
	EventRenewalFailed     = "renewal_failed"
)

var ErrEmitFailed = errors.New("analytics: emit failed")

// Event is one analytics record. Properties hold flat scalar values.
type Event struct {
	Name       string
	UserID     uuid.UUID
	OccurredAt time.Time
	Properties map[string]any
}

// Emitter publishes events.
type Emitter interface {
	Emit(ctx context.Context, e Event) error
}

// EmitFunc adapts a function to Emitter.
type EmitFunc func(ctx context.Context, e Event) error

func (f EmitFunc) Emit(ctx context.Context, e Event) error { return f(ctx, e) }

// Noop drops every event.
type Noop struct{}

func (Noop) Emit(context.Context, Event) error { return nil }

// Multi emits to every emitter and joins their errors.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, e Event) error {
	var errs []error
	for _, em := range m {
		if em == nil {
			continue
		}
		if err := em.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogEmitter writes events as info log lines.
type LogEmitter struct {
	logger *slog.Logger
}

func NewLogEmitter(l *slog.Logger) *LogEmitter {
	if l == nil {
		l = slog.Default()
	}
	return &LogEmitter{logger: l}
}

func (l *LogEmitter) Emit(ctx context.Context, e Event) error {
	attrs := make([]any, 0, len(e.Properties)+2)
	attrs = append(attrs, slog.String("event", e.Name), slog.String("user_id", e.UserID.String()))
	for k, v := range e.Properties {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.InfoContext(ctx, "analytics event", attrs...)
	return nil
}

// Emit sends e through em with a short deadline detached from ctx's
// cancellation and logs failures instead of returning them.
func Emit(ctx context.Context, em Emitter, log *slog.Logger, e Event) {
	if em == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := em.Emit(ctx, e); err != nil && log != nil {
		log.WarnContext(ctx, "analytics emit failed", slog.String("event", e.Name), slog.String("error", err.Error()))
	}
}
