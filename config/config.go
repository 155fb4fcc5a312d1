// Package config loads client configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the session/auth client needs to run.
type Config struct {
	// BaseURL is the address of the ArdhiAssets backend API.
	BaseURL string `env:"ARDHI_BASE_URL" envDefault:"http://localhost:8095/api/v1"`

	// SessionFile is the path of the encrypted durable session store.
	// Empty disables the durable tier; remember-me then degrades to the
	// process lifetime.
	SessionFile string `env:"ARDHI_SESSION_FILE"`

	// SessionSecret seals the durable session store. Required when
	// SessionFile is set.
	SessionSecret string `env:"ARDHI_SESSION_SECRET"`

	// DefaultTimeoutMinutes is the idle timeout assumed until the
	// backend communicates its policy.
	DefaultTimeoutMinutes int `env:"ARDHI_SESSION_TIMEOUT_MINUTES" envDefault:"30"`

	// HTTPTimeout bounds each backend request.
	HTTPTimeout time.Duration `env:"ARDHI_HTTP_TIMEOUT" envDefault:"15s"`

	// ValidateInterval is the session validator's polling interval.
	ValidateInterval time.Duration `env:"ARDHI_VALIDATE_INTERVAL" envDefault:"1m"`

	// ValidateGrace delays the validator's first poll after startup.
	ValidateGrace time.Duration `env:"ARDHI_VALIDATE_GRACE" envDefault:"10s"`

	// WarnBelow is the remaining-time threshold for expiry warnings.
	WarnBelow time.Duration `env:"ARDHI_WARN_BELOW" envDefault:"5m"`

	// ActivityDebounce is the minimum interval between persisted
	// activity timestamps.
	ActivityDebounce time.Duration `env:"ARDHI_ACTIVITY_DEBOUNCE" envDefault:"1s"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("config: ARDHI_BASE_URL is required")
	}
	if c.SessionFile != "" && c.SessionSecret == "" {
		return fmt.Errorf("config: ARDHI_SESSION_SECRET is required when ARDHI_SESSION_FILE is set")
	}
	return nil
}
