package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Ledger configuration
	PrimaryCurrency string `envconfig:"PRIMARY_CURRENCY" default:"betcoins"`

	// Resolution sweep configuration
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`

	// Environment: "development", "production" or "test"
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	})
	return instance
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{}
	if err := envconfig.Process("", config); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if config.Environment != "test" {
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	}
	if config.SweepInterval < time.Second {
		return nil, fmt.Errorf("SWEEP_INTERVAL must be at least one second")
	}

	return config, nil
}
