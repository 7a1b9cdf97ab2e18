package agent

import (
	"fmt"
	"time"
)

// DefaultResumeCommand resets a builder's virtual machine.
const DefaultResumeCommand = "ssh ppa@${vm_host} reset-vm ${buildd_name}"

// Config represents agent client configuration
type Config struct {
	// TimeoutMs bounds every call.
	TimeoutMs int `json:"timeoutMs" yaml:"timeoutMs"`
	// EnsurePresentFactor multiplies TimeoutMs for ensurePresent and file downloads.
	EnsurePresentFactor int `json:"ensurePresentFactor" yaml:"ensurePresentFactor"`
	// Codec is json or cbor.
	Codec string `json:"codec" yaml:"codec"`
	// ResumeCommand is expanded with ${vm_host} and ${buildd_name}.
	ResumeCommand string `json:"resumeCommand" yaml:"resumeCommand"`
	// ResumeHostURL is where the resume command runs, e.g. bash://localhost/.
	ResumeHostURL string `json:"resumeHostURL" yaml:"resumeHostURL"`
	// ResumeCredentials names scy ssh credentials for a remote ResumeHostURL.
	ResumeCredentials string `json:"resumeCredentials,omitempty" yaml:"resumeCredentials,omitempty"`
}

// DefaultConfig returns the default agent configuration
func DefaultConfig() *Config {
	return &Config{
		TimeoutMs:           40000,
		EnsurePresentFactor: 5,
		Codec:               "json",
		ResumeCommand:       DefaultResumeCommand,
		ResumeHostURL:       "bash://localhost/",
	}
}

// Timeout returns TimeoutMs as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.TimeoutMs <= 0 {
		return fmt.Errorf("agent: timeoutMs must be positive, got %d", c.TimeoutMs)
	}
	if c.EnsurePresentFactor < 1 {
		return fmt.Errorf("agent: ensurePresentFactor must be at least 1, got %d", c.EnsurePresentFactor)
	}
	if c.ResumeCommand == "" {
		return fmt.Errorf("agent: resumeCommand is required")
	}
	if _, err := CodecByName(c.Codec); err != nil {
		return err
	}
	return nil
}
