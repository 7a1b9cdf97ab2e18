package scanner

import (
	"fmt"
	"time"
)

// Config represents scanner configuration
type Config struct {
	// PollIntervalMs is how often every builder is scanned.
	PollIntervalMs int `json:"pollIntervalMs" yaml:"pollIntervalMs"`
	// FailureThreshold is the number of consecutive infrastructure failures
	// after which a builder is failed.
	FailureThreshold int `json:"failureThreshold" yaml:"failureThreshold"`
	// Concurrency bounds how many builders are scanned at once.
	Concurrency int `json:"concurrency" yaml:"concurrency"`
}

// DefaultConfig returns the default scanner configuration
func DefaultConfig() Config {
	return Config{PollIntervalMs: 15000, FailureThreshold: 5, Concurrency: 32}
}

// PollInterval returns the scan period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.PollIntervalMs <= 0 {
		return fmt.Errorf("scanner: pollIntervalMs must be positive")
	}
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("scanner: failureThreshold must be positive")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("scanner: concurrency must be positive")
	}
	return nil
}
