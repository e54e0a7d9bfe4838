package purchase

import (
	"errors"
	"time"
)

// Config bounds the saga.
type Config struct {
	// SagaTimeout caps one Purchase run, including compensation.
	SagaTimeout time.Duration `env:"PURCHASE_SAGA_TIMEOUT" envDefault:"30s"`
	// GuardDelay is when the reconcile guard of a credit purchase becomes due.
	// It must exceed SagaTimeout so the guard never races a live saga.
	GuardDelay time.Duration `env:"PURCHASE_GUARD_DELAY" envDefault:"2m"`
	// ExternalPaymentTimeout is how long a card or crypto order may wait in
	// pending_payment before reconciliation cancels it.
	ExternalPaymentTimeout time.Duration `env:"PURCHASE_EXTERNAL_PAYMENT_TIMEOUT" envDefault:"30m"`
}

// DefaultConfig mirrors the envDefault tags.
func DefaultConfig() Config {
	return Config{
		SagaTimeout:            30 * time.Second,
		GuardDelay:             2 * time.Minute,
		ExternalPaymentTimeout: 30 * time.Minute,
	}
}

func (c Config) Validate() error {
	switch {
	case c.SagaTimeout <= 0:
		return errors.New("purchase: saga timeout must be positive")
	case c.GuardDelay <= c.SagaTimeout:
		return errors.New("purchase: guard delay must exceed the saga timeout")
	case c.ExternalPaymentTimeout <= 0:
		return errors.New("purchase: external payment timeout must be positive")
	}
	return nil
}
