package renewal

import "time"

// Config controls renewal timing.
type Config struct {
	// Interval is the pause between automatic renewal passes.
	Interval time.Duration `env:"RENEWAL_INTERVAL" envDefault:"1h"`
	// ManualWindow is how long before expiry a user may renew by hand.
	ManualWindow time.Duration `env:"RENEWAL_MANUAL_WINDOW" envDefault:"168h"`
	// AutoRenewLead renews auto-renewing subscriptions this long before expiry.
	AutoRenewLead time.Duration `env:"RENEWAL_AUTO_LEAD" envDefault:"24h"`
	BatchSize     int           `env:"RENEWAL_BATCH_SIZE" envDefault:"100"`
	// GuardDelay is when a period's settle check becomes due after its debit.
	GuardDelay time.Duration `env:"RENEWAL_GUARD_DELAY" envDefault:"5m"`
}

// DefaultConfig mirrors the envDefault tags.
func DefaultConfig() Config {
	return Config{
		Interval:      time.Hour,
		ManualWindow:  7 * 24 * time.Hour,
		AutoRenewLead: 24 * time.Hour,
		BatchSize:     100,
		GuardDelay:    5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.ManualWindow <= 0 {
		c.ManualWindow = def.ManualWindow
	}
	if c.AutoRenewLead < 0 {
		c.AutoRenewLead = def.AutoRenewLead
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.GuardDelay <= 0 {
		c.GuardDelay = def.GuardDelay
	}
	return c
}
