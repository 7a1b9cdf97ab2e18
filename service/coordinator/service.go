// Package coordinator drives a single builder through cleaning, dispatch and
// build supervision. It holds no per-builder state: every operation works on a
// builder.Vitals snapshot and writes back through the registry, committing
// before any dependent network call.
package coordinator

import (
	"context"
	"log/slog"

	"github.com/viant/buildfarm/internal/logging"
	"github.com/viant/buildfarm/model/builder"
	"github.com/viant/buildfarm/model/status"
	"github.com/viant/buildfarm/service/behaviour"
	"github.com/viant/buildfarm/service/event"
	"github.com/viant/buildfarm/service/registry"
)

const serviceName = "coordinator"

// Service implements the coordinator operations.
type Service struct {
	registry   registry.Registry
	behaviours *behaviour.Registry
	publisher  *event.Publisher[builder.Transition]
	logger     *slog.Logger
}

// Option configures the service.
type Option func(*Service)

// WithPublisher publishes every clean status transition.
func WithPublisher(publisher *event.Publisher[builder.Transition]) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates a coordinator.
func New(registry registry.Registry, behaviours *behaviour.Registry, opts ...Option) *Service {
	ret := &Service{registry: registry, behaviours: behaviours, logger: logging.Discard()}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Registry returns the registry the coordinator writes to.
func (s *Service) Registry() registry.Registry { return s.registry }

// ExtractBuildStatus returns NAME from the report's "BuildStatus.NAME".
func ExtractBuildStatus(report *status.Report) (string, error) {
	return status.ExtractBuildStatus(report)
}

// setCleanStatus commits the transition and then publishes it. A publish
// failure never fails the coordinator step.
func (s *Service) setCleanStatus(ctx context.Context, name string, cleanStatus builder.CleanStatus, operation string) error {
	transition, err := s.registry.SetCleanStatus(ctx, name, cleanStatus)
	if err != nil {
		return err
	}
	s.logger.Info("clean status changed", "builder", name, "from", transition.From, "clean_status", transition.To)
	if s.publisher == nil {
		return nil
	}
	anEvent := event.NewEvent(&event.Context{Builder: name, Service: serviceName, Operation: operation}, *transition)
	if err = s.publisher.Publish(ctx, anEvent); err != nil {
		s.logger.Warn("failed to publish transition", "builder", name, "clean_status", transition.To, "error", err)
	}
	return nil
}
