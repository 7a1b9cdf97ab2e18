// Package agent is the client of a remote builder agent: status queries,
// build dispatch, file retrieval and virtual machine resume, each bounded by
// a per-call timeout.
package agent

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/viant/afs"
	"github.com/viant/buildfarm/internal/logging"
	"github.com/viant/buildfarm/model/status"
	"github.com/viant/buildfarm/service/hostexec"
	"github.com/viant/buildfarm/service/pool"
)

// Agent is the remote call surface of one builder.
type Agent interface {
	// URL returns the agent base URL.
	URL() string
	Abort(ctx context.Context) error
	Clean(ctx context.Context) error
	Echo(ctx context.Context, args ...string) ([]string, error)
	Info(ctx context.Context) (*Info, error)
	Status(ctx context.Context) (*status.Report, error)
	// EnsurePresent asks the agent to cache the file with digest from url.
	EnsurePresent(ctx context.Context, digest, url, user, password string) (bool, string, error)
	// GetFile downloads the file with digest to dest.
	GetFile(ctx context.Context, digest, dest string) error
	// GetFiles downloads files concurrently.
	GetFiles(ctx context.Context, files []FileRequest) error
	// Resume power-cycles the builder's virtual machine.
	Resume(ctx context.Context) (stdout, stderr string, err error)
	// Build dispatches a build, returning once the agent has accepted it.
	Build(ctx context.Context, buildID, builderType, chrootDigest string, fileMap map[string]string, args map[string]any) error
}

// Info describes the agent.
type Info struct {
	Version       string   `json:"version" cbor:"version"`
	Architectures []string `json:"architectures,omitempty" cbor:"architectures,omitempty"`
	Builders      []string `json:"builders,omitempty" cbor:"builders,omitempty"`
}

// FileRequest pairs a file digest with its download destination.
type FileRequest struct {
	Digest string
	Dest   string
}

// Client implements Agent over HTTP.
type Client struct {
	baseURL    string
	hostKey    string
	pool       *pool.Pool
	config     *Config
	codec      Codec
	httpClient *http.Client
	fs         afs.Service
	runner     hostexec.Runner
	// ownRunner is the runner New opened when none was injected.
	ownRunner  *hostexec.Service
	vmHost     string
	logger     *slog.Logger
}

var _ Agent = (*Client)(nil)

// Option configures the client.
type Option func(*Client)

// WithConfig replaces timeouts, codec and resume settings.
func WithConfig(config *Config) Option {
	return func(c *Client) {
		c.config = config
		if codec, err := CodecByName(config.Codec); err == nil {
			c.codec = codec
		}
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		config := *c.config
		config.TimeoutMs = int(timeout.Milliseconds())
		c.config = &config
	}
}

// WithCodec sets the RPC codec.
func WithCodec(codec Codec) Option {
	return func(c *Client) { c.codec = codec }
}

// WithVMHost sets the host of the builder's virtual machine.
func WithVMHost(host string) Option {
	return func(c *Client) { c.vmHost = host }
}

// WithRunner sets the runner executing the resume command. The caller keeps
// ownership of runner.
func WithRunner(runner hostexec.Runner) Option {
	return func(c *Client) { c.runner = runner }
}

// WithHTTPClient sets the client used for RPC calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

// WithFS sets the storage service receiving downloaded files.
func WithFS(fs afs.Service) Option {
	return func(c *Client) { c.fs = fs }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for the agent at baseURL. Downloads lease
// connections from p. Without WithRunner the client runs resume commands in
// its own session, released by Close.
func New(baseURL string, p *pool.Pool, opts ...Option) *Client {
	ret := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		hostKey:    hostKey(baseURL),
		pool:       p,
		config:     DefaultConfig(),
		codec:      JSON,
		httpClient: &http.Client{},
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.fs == nil {
		ret.fs = afs.New()
	}
	if ret.runner == nil {
		ret.ownRunner = hostexec.New(ret.config.ResumeHostURL,
			hostexec.WithCredentials(ret.config.ResumeCredentials), hostexec.WithLogger(ret.logger))
		ret.runner = ret.ownRunner
	}
	return ret
}

// Close releases the resume session opened by the client. An injected runner
// is left open.
func (c *Client) Close() error {
	if c.ownRunner == nil {
		return nil
	}
	return c.ownRunner.Close()
}

func (c *Client) URL() string { return c.baseURL }

func (c *Client) timeout() time.Duration {
	return c.config.Timeout()
}

func (c *Client) longTimeout() time.Duration {
	return c.config.Timeout() * time.Duration(c.config.EnsurePresentFactor)
}

// BuilderName returns the first DNS label of the agent URL host.
func BuilderName(agentURL string) string {
	u, err := url.Parse(agentURL)
	if err != nil {
		return ""
	}
	host := u.Hostname()
	name, _, _ := strings.Cut(host, ".")
	return name
}

func hostKey(agentURL string) string {
	if u, err := url.Parse(agentURL); err == nil && u.Host != "" {
		return u.Host
	}
	return agentURL
}
