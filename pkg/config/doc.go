// Package config loads typed configuration from the environment.
//
// Structs describe their variables with github.com/caarlos0/env/v11 tags; a
// .env file in the working directory is read once via github.com/joho/godotenv.
// Config types that implement Validator get cross-field checks after parsing.
//
//	type Config struct {
//		SagaTimeout time.Duration `env:"PURCHASE_SAGA_TIMEOUT" envDefault:"2m"`
//		GuardDelay  time.Duration `env:"PURCHASE_GUARD_DELAY" envDefault:"15m"`
//	}
//
//	func (c Config) Validate() error { ... }
//
//	var cfg Config
//	config.MustLoad(&cfg)
package config
