// Package ratelimit limits public API requests per route, user and client IP.
package ratelimit

import (
	"errors"
	"fmt"
	"time"

	"github.com/vestival/algorand-tracker/internal/config"
)

// Default configuration values.
const (
	DefaultWindow    = time.Minute
	DefaultMax       = 30
	DefaultKeyPrefix = "ratelimit:"
	DefaultMaxKeys   = 10000 // in-memory fallback entries before idle keys are swept
)

// Config holds limiter configuration
type Config struct {
	// Window is the sliding window length. Default: 60s.
	Window time.Duration

	// Max is the number of requests allowed per key and window. Default: 30.
	Max int

	// KeyPrefix namespaces keys in the persistent store. Default: "ratelimit:".
	KeyPrefix string
}

// FromAppConfig builds a limiter configuration from the application configuration
func FromAppConfig(cfg config.RateLimitConfig) *Config {
	return &Config{Window: cfg.Window, Max: cfg.Max}
}

// withDefaults returns a copy with zero values replaced by defaults
func (c *Config) withDefaults() *Config {
	out := *c
	if out.Window == 0 {
		out.Window = DefaultWindow
	}
	if out.Max == 0 {
		out.Max = DefaultMax
	}
	if out.KeyPrefix == "" {
		out.KeyPrefix = DefaultKeyPrefix
	}
	return &out
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Window < 0 {
		return errors.New("window cannot be negative")
	}
	if c.Window > 0 && c.Window < time.Millisecond {
		return fmt.Errorf("window must be at least 1ms, got %s", c.Window)
	}
	if c.Max < 0 {
		return errors.New("max cannot be negative")
	}
	return nil
}

// String returns a representation of the configuration for logging
func (c *Config) String() string {
	return fmt.Sprintf("ratelimit.Config{Window: %s, Max: %d, KeyPrefix: %q}", c.Window, c.Max, c.KeyPrefix)
}
