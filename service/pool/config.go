package pool

import (
	"fmt"
	"time"
)

// Config represents pool configuration
type Config struct {
	// MaxConnections caps connections in use across all keys.
	MaxConnections int `json:"maxConnections" yaml:"maxConnections"`
	// MaxIdlePerHost caps idle connections kept per key.
	MaxIdlePerHost int `json:"maxIdlePerHost" yaml:"maxIdlePerHost"`
	// IdleTimeoutMs expires idle connections; it normally equals the scan interval.
	IdleTimeoutMs int `json:"idleTimeoutMs" yaml:"idleTimeoutMs"`
}

// DefaultConfig returns the default pool configuration
func DefaultConfig() *Config {
	return &Config{
		MaxConnections: 2048,
		MaxIdlePerHost: 1,
		IdleTimeoutMs:  15000,
	}
}

// IdleTimeout returns IdleTimeoutMs as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMs) * time.Millisecond
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MaxConnections <= 0 {
		return fmt.Errorf("pool: maxConnections must be positive, got %d", c.MaxConnections)
	}
	if c.MaxIdlePerHost < 0 {
		return fmt.Errorf("pool: maxIdlePerHost must not be negative, got %d", c.MaxIdlePerHost)
	}
	if c.IdleTimeoutMs < 0 {
		return fmt.Errorf("pool: idleTimeoutMs must not be negative, got %d", c.IdleTimeoutMs)
	}
	return nil
}
