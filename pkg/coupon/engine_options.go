package coupon

import (
	"log/slog"
	"time"
)

// Option configures an Engine.
type Option func(*Engine)

// WithClaimRules replaces the default scope table.
func WithClaimRules(r *ClaimRules) Option {
	return func(e *Engine) {
		if r != nil {
			e.rules = r
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
