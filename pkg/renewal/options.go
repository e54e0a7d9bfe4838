package renewal

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrymomot/seatshare/pkg/analytics"
)

// Option configures a Worker.
type Option func(*Worker)

func WithConfig(cfg Config) Option {
	return func(w *Worker) { w.cfg = cfg }
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(w *Worker) {
		if t != nil {
			w.tracer = t
		}
	}
}

func WithAnalytics(em analytics.Emitter) Option {
	return func(w *Worker) { w.emitter = em }
}

// WithFulfiller sets the hook run after each successful renewal.
func WithFulfiller(f Fulfiller) Option {
	return func(w *Worker) { w.fulfiller = f }
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}
