package buildfarm

import (
	"context"
	"errors"
	"fmt"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/buildfarm/model/builder"
	"github.com/viant/buildfarm/service/agent"
	"github.com/viant/buildfarm/service/event"
	"github.com/viant/buildfarm/service/pool"
	"github.com/viant/buildfarm/service/scanner"
	"gopkg.in/yaml.v3"
)

// Registry vendors.
const (
	RegistryMemory = "memory"
	RegistrySQLite = "sqlite"
)

// Config is a serialisable representation of the coordinator configuration.
// LoadConfig overlays a YAML document on DefaultConfig, so a document only
// needs the settings it changes.
type Config struct {
	Agent     *agent.Config   `json:"agent" yaml:"agent"`
	Pool      *pool.Config    `json:"pool" yaml:"pool"`
	Scanner   scanner.Config  `json:"scanner" yaml:"scanner"`
	Registry  RegistryConfig  `json:"registry" yaml:"registry"`
	Artifacts ArtifactsConfig `json:"artifacts" yaml:"artifacts"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Tracing   TracingConfig   `json:"tracing" yaml:"tracing"`
	Events    event.Config    `json:"events" yaml:"events"`
	// Builders are registered on start unless already known.
	Builders []*builder.Builder `json:"builders,omitempty" yaml:"builders,omitempty"`
}

// RegistryConfig selects where builders and the build queue are stored.
type RegistryConfig struct {
	Vendor   string `json:"vendor" yaml:"vendor"`
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`
	PoolSize int    `json:"poolSize,omitempty" yaml:"poolSize,omitempty"`
}

// ArtifactsConfig locates build inputs and outputs.
type ArtifactsConfig struct {
	// UploadRoot receives gathered build results.
	UploadRoot string `json:"uploadRoot" yaml:"uploadRoot"`
	// LibrarianURL serves chroots and sources without an explicit URL.
	LibrarianURL string `json:"librarianURL" yaml:"librarianURL"`
	// CredentialsKey decrypts private archive credentials.
	CredentialsKey string `json:"credentialsKey,omitempty" yaml:"credentialsKey,omitempty"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"serviceName" yaml:"serviceName"`
	OutputFile  string `json:"outputFile,omitempty" yaml:"outputFile,omitempty"`
}

// DefaultConfig returns a Config populated with the package defaults. Idle
// pooled connections expire after one scan interval.
func DefaultConfig() *Config {
	scan := scanner.DefaultConfig()
	poolConfig := pool.DefaultConfig()
	poolConfig.IdleTimeoutMs = scan.PollIntervalMs
	return &Config{
		Agent:     agent.DefaultConfig(),
		Pool:      poolConfig,
		Scanner:   scan,
		Registry:  RegistryConfig{Vendor: RegistryMemory, PoolSize: 4},
		Artifacts: ArtifactsConfig{UploadRoot: "/tmp/buildfarm/upload", LibrarianURL: "http://localhost:8000/"},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Tracing:   TracingConfig{ServiceName: "buildfarm"},
		Events:    event.DefaultConfig(),
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Agent == nil {
		errs = append(errs, fmt.Errorf("agent config is required"))
	} else if err := c.Agent.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Pool == nil {
		errs = append(errs, fmt.Errorf("pool config is required"))
	} else if err := c.Pool.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Scanner.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Events.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Registry.Vendor {
	case RegistryMemory:
	case RegistrySQLite:
		if c.Registry.Path == "" {
			errs = append(errs, fmt.Errorf("registry.path is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported registry vendor: %q", c.Registry.Vendor))
	}
	if c.Artifacts.UploadRoot == "" {
		errs = append(errs, fmt.Errorf("artifacts.uploadRoot is required"))
	}
	names := map[string]bool{}
	for i, b := range c.Builders {
		switch {
		case b == nil || b.Name == "":
			errs = append(errs, fmt.Errorf("builders[%d]: name is required", i))
		case b.URL == "":
			errs = append(errs, fmt.Errorf("builder %s: url is required", b.Name))
		case names[b.Name]:
			errs = append(errs, fmt.Errorf("builder %s: duplicate name", b.Name))
		}
		if b != nil {
			names[b.Name] = true
		}
	}
	return errors.Join(errs...)
}

// LoadConfig reads a YAML configuration from any afs supported URL and
// overlays it on DefaultConfig. options are passed to the afs download, e.g.
// an embed.FS for embed:// URLs.
func LoadConfig(ctx context.Context, URL string, options ...storage.Option) (*Config, error) {
	data, err := afs.New().DownloadWithURL(ctx, URL, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", URL, err)
	}
	ret := DefaultConfig()
	if err = yaml.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", URL, err)
	}
	if err = ret.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", URL, err)
	}
	return ret, nil
}
