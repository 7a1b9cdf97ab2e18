package buildfarm

import (
	"log/slog"

	"github.com/viant/buildfarm/model/builder"
	"github.com/viant/buildfarm/model/queue"
	"github.com/viant/buildfarm/service/behaviour"
	"github.com/viant/buildfarm/service/event"
	"github.com/viant/buildfarm/service/hostexec"
	"github.com/viant/buildfarm/service/pool"
	"github.com/viant/buildfarm/service/registry"
	"github.com/viant/buildfarm/service/scanner"
	"github.com/viant/buildfarm/service/secret"
	"github.com/viant/buildfarm/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option configures the Service.
type Option func(s *Service)

// WithLogger sets the logger, overriding the logging config section
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithRegistry sets the registry, overriding the registry config section
func WithRegistry(r registry.Registry) Option {
	return func(s *Service) { s.registry = r }
}

// WithRunner sets the host command runner used to resume virtual machines
func WithRunner(runner hostexec.Runner) Option {
	return func(s *Service) { s.runner = runner }
}

// WithSecrets sets the archive credentials resolver
func WithSecrets(resolver secret.Resolver) Option {
	return func(s *Service) { s.secrets = resolver }
}

// WithPoolScheduler sets the scheduler releasing pooled connections
func WithPoolScheduler(scheduler pool.Scheduler) Option {
	return func(s *Service) { s.poolOptions = append(s.poolOptions, pool.WithScheduler(scheduler)) }
}

// WithAgentFactory replaces how agent clients are created, e.g. with fakes in tests
func WithAgentFactory(factory scanner.AgentFactory) Option {
	return func(s *Service) { s.agentFactory = factory }
}

// WithBehaviour registers an extra build kind
func WithBehaviour(kind queue.Kind, factory behaviour.Factory) Option {
	return func(s *Service) {
		if s.extraBehaviours == nil {
			s.extraBehaviours = map[queue.Kind]behaviour.Factory{}
		}
		s.extraBehaviours[kind] = factory
	}
}

// WithTransitionHandler receives every builder clean status transition
func WithTransitionHandler(handler event.Handler[builder.Transition]) Option {
	return func(s *Service) { s.transitionHandler = handler }
}

// WithTracing configures OpenTelemetry tracing for the service. If outputFile is empty the
// stdout exporter is used; otherwise traces are written to the supplied file path.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom SpanExporter.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
