package credits

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/seatshare/pkg/pricing"
)

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCurrency sets the ledger currency. Invalid codes are ignored.
func WithCurrency(code string) ServiceOption {
	return func(s *Service) {
		if cur, err := pricing.ParseCurrency(code); err == nil {
			s.currency = cur
		}
	}
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source for transaction timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
