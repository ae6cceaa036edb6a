package config

import (
	"errors"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrNilPointer          = errors.New("config: nil pointer passed to Load")
	ErrFailedToParseEnv    = errors.New("config: failed to parse environment variables")
	ErrFailedToLoadEnvFile = errors.New("config: failed to load env file")
)

var defaultEnvLoaded sync.Once

// Load populates cfg from environment variables based on `env` field tags.
// The default .env file is loaded once per process if present; a missing
// file is not an error.
//
//	type EngineConfig struct {
//	    PaystackKey string `env:"PAYSTACK_SECRET_KEY,required"`
//	    Grace       time.Duration `env:"DOUBLE_CHARGE_GRACE" envDefault:"168h"`
//	}
func Load[T any](cfg *T) error {
	if cfg == nil {
		return ErrNilPointer
	}
	defaultEnvLoaded.Do(func() {
		// The .env file is a development convenience only.
		_ = godotenv.Load()
	})
	if err := env.Parse(cfg); err != nil {
		return errors.Join(ErrFailedToParseEnv, err)
	}
	return nil
}

// MustLoad is Load that panics on failure, for wiring code where a broken
// configuration should prevent startup.
func MustLoad[T any](cfg *T) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}

// LoadEnv loads specific env files before parsing, later files taking
// precedence. Unlike the default .env, named files must exist.
func LoadEnv(paths ...string) error {
	if err := godotenv.Overload(paths...); err != nil {
		return errors.Join(ErrFailedToLoadEnvFile, err)
	}
	return nil
}
