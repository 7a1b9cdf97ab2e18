package buildfarm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/buildfarm/internal/logging"
	"github.com/viant/buildfarm/model/builder"
	"github.com/viant/buildfarm/model/queue"
	"github.com/viant/buildfarm/service/agent"
	"github.com/viant/buildfarm/service/behaviour"
	"github.com/viant/buildfarm/service/behaviour/binarypackage"
	"github.com/viant/buildfarm/service/behaviour/recipe"
	"github.com/viant/buildfarm/service/coordinator"
	"github.com/viant/buildfarm/service/event"
	"github.com/viant/buildfarm/service/hostexec"
	"github.com/viant/buildfarm/service/pool"
	"github.com/viant/buildfarm/service/registry"
	"github.com/viant/buildfarm/service/registry/memory"
	"github.com/viant/buildfarm/service/registry/sqlite"
	"github.com/viant/buildfarm/service/scanner"
	"github.com/viant/buildfarm/service/secret"
	"github.com/viant/buildfarm/tracing"
)

// Version is reported in traces.
const Version = "0.1.0"

// Service wires the coordinator together from a Config.
type Service struct {
	config            *Config
	logger            *slog.Logger
	registry          registry.Registry
	pool              *pool.Pool
	poolOptions       []pool.Option
	runner            hostexec.Runner
	secrets           secret.Resolver
	behaviours        *behaviour.Registry
	extraBehaviours   map[queue.Kind]behaviour.Factory
	events            *event.Service
	transitionHandler event.Handler[builder.Transition]
	coordinator       *coordinator.Service
	scanner           *scanner.Service
	agentFactory      scanner.AgentFactory
	agents            map[string]*agentEntry
	mux               sync.Mutex
	closers           []io.Closer
}

// New creates a Service. A nil config means DefaultConfig.
func New(ctx context.Context, config *Config, opts ...Option) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	ret := &Service{config: config, agents: map[string]*agentEntry{}}
	for _, opt := range opts {
		opt(ret)
	}
	if err := ret.init(ctx); err != nil {
		_ = ret.Close()
		return nil, err
	}
	return ret, nil
}

func (s *Service) init(ctx context.Context) error {
	if s.logger == nil {
		s.logger = logging.New(s.config.Logging.Level, s.config.Logging.Format, os.Stderr)
	}
	if s.config.Tracing.Enabled {
		if err := tracing.Init(s.config.Tracing.ServiceName, Version, s.config.Tracing.OutputFile); err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
	}
	if err := s.initRegistry(ctx); err != nil {
		return err
	}
	if err := s.ensureUploadRoot(ctx); err != nil {
		return err
	}
	s.pool = pool.New(s.config.Pool, append([]pool.Option{pool.WithLogger(s.logger)}, s.poolOptions...)...)
	if s.runner == nil {
		runner := hostexec.New(s.config.Agent.ResumeHostURL,
			hostexec.WithCredentials(s.config.Agent.ResumeCredentials),
			hostexec.WithLogger(s.logger))
		s.runner = runner
		s.closers = append(s.closers, runner)
	}
	if s.secrets == nil {
		s.secrets = secret.New(s.config.Artifacts.CredentialsKey)
	}
	s.behaviours = behaviour.NewRegistry(&behaviour.Deps{
		Registry:     s.registry,
		Secrets:      s.secrets,
		UploadRoot:   s.config.Artifacts.UploadRoot,
		LibrarianURL: s.config.Artifacts.LibrarianURL,
		Logger:       s.logger,
	})
	binarypackage.Register(s.behaviours)
	recipe.Register(s.behaviours)
	for kind, factory := range s.extraBehaviours {
		s.behaviours.Register(kind, factory)
	}
	publisher, err := s.initEvents(ctx)
	if err != nil {
		return err
	}
	s.coordinator = coordinator.New(s.registry, s.behaviours,
		coordinator.WithPublisher(publisher),
		coordinator.WithLogger(s.logger))
	if s.agentFactory == nil {
		s.agentFactory = s.AgentFor
	}
	s.scanner = scanner.New(s.config.Scanner, s.coordinator, s.agentFactory, scanner.WithLogger(s.logger))
	return nil
}

func (s *Service) initRegistry(ctx context.Context) error {
	if s.registry == nil {
		switch s.config.Registry.Vendor {
		case RegistrySQLite:
			srv, err := sqlite.New(s.config.Registry.Path, s.config.Registry.PoolSize, sqlite.WithLogger(s.logger))
			if err != nil {
				return err
			}
			s.registry = srv
			s.closers = append(s.closers, srv)
		default:
			s.registry = memory.New()
		}
	}
	for _, b := range s.config.Builders {
		_, err := s.registry.Builder(ctx, b.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, registry.ErrBuilderNotFound) {
			return err
		}
		if err = s.registry.SaveBuilder(ctx, b); err != nil {
			return fmt.Errorf("failed to register builder %s: %w", b.Name, err)
		}
		s.logger.Info("builder registered", "builder", b.Name, "url", b.URL)
	}
	return nil
}

func (s *Service) ensureUploadRoot(ctx context.Context) error {
	fs := afs.New()
	if ok, _ := fs.Exists(ctx, s.config.Artifacts.UploadRoot); ok {
		return nil
	}
	if err := fs.Create(ctx, s.config.Artifacts.UploadRoot, file.DefaultDirOsMode, true); err != nil {
		return fmt.Errorf("failed to create upload root %s: %w", s.config.Artifacts.UploadRoot, err)
	}
	return nil
}

func (s *Service) initEvents(ctx context.Context) (*event.Publisher[builder.Transition], error) {
	var err error
	if s.events, err = event.New(s.config.Events, event.WithLogger(s.logger)); err != nil {
		return nil, err
	}
	publisher, err := event.PublisherOf[builder.Transition](ctx, s.events)
	if err != nil {
		return nil, err
	}
	handler := s.transitionHandler
	if handler == nil {
		handler = func(_ context.Context, e *event.Event[builder.Transition]) error {
			s.logger.Debug("builder transition", "builder", e.Data.Builder, "from", e.Data.From, "clean_status", e.Data.To)
			return nil
		}
	}
	if err = event.SetListenerOf[builder.Transition](context.Background(), s.events, handler); err != nil {
		return nil, err
	}
	return publisher, nil
}

type agentEntry struct {
	url    string
	vmHost string
	client *agent.Client
}

// AgentFor returns the client of the builder described by vitals. Clients are
// cached per builder and recreated when its URL or VM host changes.
func (s *Service) AgentFor(vitals builder.Vitals) agent.Agent {
	s.mux.Lock()
	defer s.mux.Unlock()
	entry, ok := s.agents[vitals.Name]
	if ok && entry.url == vitals.URL && entry.vmHost == vitals.VMHost {
		return entry.client
	}
	if ok {
		_ = entry.client.Close()
	}
	client := agent.New(vitals.URL, s.pool,
		agent.WithConfig(s.config.Agent),
		agent.WithVMHost(vitals.VMHost),
		agent.WithRunner(s.runner),
		agent.WithLogger(s.logger.With("builder", vitals.Name)))
	s.agents[vitals.Name] = &agentEntry{url: vitals.URL, vmHost: vitals.VMHost, client: client}
	return client
}

// Registry returns the builder and build queue store.
func (s *Service) Registry() registry.Registry { return s.registry }

// Coordinator returns the coordinator.
func (s *Service) Coordinator() *coordinator.Service { return s.coordinator }

// Pool returns the shared connection pool.
func (s *Service) Pool() *pool.Pool { return s.pool }

// Scan steps every builder once.
func (s *Service) Scan(ctx context.Context) error {
	return s.scanner.Scan(ctx)
}

// Start runs the scan loop until ctx is done or Shutdown is called.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("scanner started", "poll_interval", s.config.Scanner.PollInterval())
	return s.scanner.Start(ctx)
}

// Shutdown stops the scan loop.
func (s *Service) Shutdown() {
	if s.scanner != nil {
		s.scanner.Shutdown()
	}
}

// Close stops the service and releases its resources.
func (s *Service) Close() error {
	s.Shutdown()
	if s.events != nil {
		s.events.Close()
	}
	var errs []error
	if s.pool != nil {
		errs = append(errs, s.pool.Close())
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}
