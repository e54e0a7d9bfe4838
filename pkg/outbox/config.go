package outbox

import "time"

// Config holds the outbox and sweeper settings.
type Config struct {
	PollInterval   time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"5s"`
	Lease          time.Duration `env:"OUTBOX_LEASE" envDefault:"1m"`
	HandlerTimeout time.Duration `env:"OUTBOX_HANDLER_TIMEOUT" envDefault:"30s"`
	BatchSize      int           `env:"OUTBOX_BATCH_SIZE" envDefault:"50"`
	Concurrency    int           `env:"OUTBOX_CONCURRENCY" envDefault:"4"`
	MaxAttempts    int           `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"10"`
	BaseBackoff    time.Duration `env:"OUTBOX_BASE_BACKOFF" envDefault:"5s"`
	MaxBackoff     time.Duration `env:"OUTBOX_MAX_BACKOFF" envDefault:"10m"`
}

// DefaultConfig mirrors the envDefault tags.
func DefaultConfig() Config {
	return Config{
		PollInterval:   5 * time.Second,
		Lease:          time.Minute,
		HandlerTimeout: 30 * time.Second,
		BatchSize:      50,
		Concurrency:    4,
		MaxAttempts:    10,
		BaseBackoff:    5 * time.Second,
		MaxBackoff:     10 * time.Minute,
	}
}

// Backoff returns the delay before retry number attempts (1-based):
// BaseBackoff doubled per attempt, capped at MaxBackoff.
func (c Config) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := c.BaseBackoff
	for range attempts - 1 {
		d *= 2
		if d >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return min(d, c.MaxBackoff)
}
