// Package hostexec runs shell commands on a host, locally or over ssh, with a
// per-command timeout. It is used to power-cycle virtual machine builders.
package hostexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs/url"
	"github.com/viant/buildfarm/internal/logging"
	"github.com/viant/gosh"
	"github.com/viant/gosh/runner"
	"github.com/viant/gosh/runner/local"
	rssh "github.com/viant/gosh/runner/ssh"
	"github.com/viant/scy/cred/secret"
	"golang.org/x/crypto/ssh"
)

// ErrTimeout is returned when a command outlives its timeout.
var ErrTimeout = errors.New("hostexec: command timed out")

// DefaultHostURL runs commands in a local bash session.
const DefaultHostURL = "bash://localhost/"

// Result holds a finished command's output. Output of a failed command is
// reported as Stderr.
type Result struct {
	Stdout string
	Stderr string
	Status int
}

// Runner runs a command under a timeout.
type Runner interface {
	Run(ctx context.Context, command string, timeout time.Duration) (*Result, error)
}

// Service runs commands in a lazily opened gosh session. A session runs one
// command at a time; concurrent callers queue for it.
type Service struct {
	hostURL     string
	credentials string
	env         map[string]string
	logger      *slog.Logger
	mux         sync.Mutex
	session     *session
}

type session struct {
	*gosh.Service
	// slot holds a token while a command runs.
	slot chan struct{}
	// dropped is closed once the session is abandoned.
	dropped chan struct{}
}

var _ Runner = (*Service)(nil)

// Option configures the service.
type Option func(*Service)

// WithCredentials names the scy ssh credentials used for remote hosts.
func WithCredentials(name string) Option {
	return func(s *Service) { s.credentials = name }
}

// WithEnv sets environment variables for the session.
func WithEnv(env map[string]string) Option {
	return func(s *Service) { s.env = env }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New creates a runner for hostURL; an empty URL means DefaultHostURL.
func New(hostURL string, opts ...Option) *Service {
	if hostURL == "" {
		hostURL = DefaultHostURL
	}
	ret := &Service{hostURL: hostURL, logger: logging.Discard()}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Run executes command. A cancelled or expired context abandons the session
// so the next command starts in a fresh one. The timeout starts once the
// session is free.
func (s *Service) Run(ctx context.Context, command string, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		timeout = time.Minute
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	session, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	type outcome struct {
		stdout string
		status int
		err    error
	}
	done := make(chan outcome, 1)
	started := time.Now()
	go func() {
		defer func() { <-session.slot }()
		stdout, status, err := session.Run(ctx, command, runner.WithTimeout(int(timeout.Milliseconds())))
		done <- outcome{stdout: stdout, status: status, err: err}
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		s.dropSession(session)
		return nil, ctx.Err()
	case <-timer.C:
		s.dropSession(session)
		return nil, fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, command)
	case out := <-done:
		if elapsed := time.Since(started); elapsed > timeout {
			s.dropSession(session)
			return nil, fmt.Errorf("%w after %s: %s", ErrTimeout, elapsed, command)
		}
		ret := &Result{Status: out.status}
		if out.status == 0 && out.err == nil {
			ret.Stdout = out.stdout
			return ret, nil
		}
		ret.Stderr = out.stdout
		if ret.Stderr == "" && out.err != nil {
			ret.Stderr = out.err.Error()
		}
		if ret.Status == 0 {
			ret.Status = -1
		}
		return ret, nil
	}
}

// acquire waits for exclusive use of the current session. A session dropped
// while waiting is skipped for a fresh one.
func (s *Service) acquire(ctx context.Context) (*session, error) {
	for {
		current, err := s.getSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("hostexec: session %s: %w", s.hostURL, err)
		}
		select {
		case current.slot <- struct{}{}:
		case <-current.dropped:
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		s.mux.Lock()
		active := s.session == current
		s.mux.Unlock()
		if active {
			return current, nil
		}
		<-current.slot
	}
}

func (s *Service) getSession(ctx context.Context) (*session, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.session != nil {
		return s.session, nil
	}
	var options []runner.Option
	if len(s.env) > 0 {
		options = append(options, runner.WithEnvironment(s.env))
	}
	var service *gosh.Service
	var err error
	host := url.Host(s.hostURL)
	if host == "localhost" || host == "" {
		service, err = gosh.New(ctx, local.New(options...))
	} else {
		var config *ssh.ClientConfig
		if config, err = s.sshConfig(ctx); err != nil {
			return nil, err
		}
		if !strings.Contains(host, ":") {
			host += ":22"
		}
		service, err = gosh.New(ctx, rssh.New(host, config, options...))
	}
	if err != nil {
		return nil, err
	}
	s.logger.Debug("host session opened", "host", s.hostURL)
	s.session = &session{Service: service, slot: make(chan struct{}, 1), dropped: make(chan struct{})}
	return s.session, nil
}

func (s *Service) sshConfig(ctx context.Context) (*ssh.ClientConfig, error) {
	credentials := s.credentials
	if credentials == "" {
		credentials = "localhost"
	}
	generic, err := secret.New().GetCredentials(ctx, credentials)
	if err != nil {
		return nil, fmt.Errorf("ssh credentials %s: %w", credentials, err)
	}
	return generic.SSH.Config(ctx)
}

func (s *Service) dropSession(current *session) {
	s.mux.Lock()
	if s.session != current {
		s.mux.Unlock()
		return
	}
	s.session = nil
	close(current.dropped)
	s.mux.Unlock()
	go func() {
		if err := current.Close(); err != nil {
			s.logger.Debug("host session close", "host", s.hostURL, "error", err)
		}
	}()
}

// Close releases the session.
func (s *Service) Close() error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.session == nil {
		return nil
	}
	close(s.session.dropped)
	err := s.session.Close()
	s.session = nil
	return err
}
