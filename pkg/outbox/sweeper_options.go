package outbox

import (
	"log/slog"
	"time"
)

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

func WithSweeperLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithSweeperMetrics(m *Metrics) SweeperOption {
	return func(s *Sweeper) { s.metrics = m }
}

// WithSweeperClock overrides time.Now, mostly for tests.
func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}
