// Package scanner is the single driver of the coordinator: each scan steps
// every builder at most once, so no builder is coordinated concurrently.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/viant/buildfarm/internal/logging"
	"github.com/viant/buildfarm/model/builder"
	"github.com/viant/buildfarm/model/queue"
	"github.com/viant/buildfarm/service/agent"
	"github.com/viant/buildfarm/service/behaviour"
	"github.com/viant/buildfarm/service/coordinator"
	"github.com/viant/buildfarm/service/registry"
	"golang.org/x/sync/errgroup"
)

// AgentFactory returns the client of the builder described by vitals.
type AgentFactory func(vitals builder.Vitals) agent.Agent

// Service periodically scans all builders.
type Service struct {
	config       Config
	registry     registry.Registry
	coordinator  *coordinator.Service
	agents       AgentFactory
	logger       *slog.Logger
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// Option configures the scanner.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates a scanner service
func New(config Config, coord *coordinator.Service, agents AgentFactory, opts ...Option) *Service {
	ret := &Service{
		config:      config,
		registry:    coord.Registry(),
		coordinator: coord,
		agents:      agents,
		logger:      logging.Discard(),
		shutdownCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Start scans all builders every poll interval until ctx is done or Shutdown
// is called.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.config.PollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.shutdownCh:
			return nil
		case <-ticker.C:
			if err := s.Scan(ctx); err != nil {
				s.logger.Error("scan failed", "error", err)
			}
		}
	}
}

// Shutdown stops the scan loop.
func (s *Service) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

// Scan steps every builder once. Fatal errors are returned joined, after every
// builder has been stepped.
func (s *Service) Scan(ctx context.Context) error {
	builders, err := s.registry.Builders(ctx)
	if err != nil {
		return fmt.Errorf("failed to list builders: %w", err)
	}
	var mux sync.Mutex
	var errs []error
	group := errgroup.Group{}
	group.SetLimit(s.config.Concurrency)
	for _, b := range builders {
		group.Go(func() error {
			if err := s.scanBuilder(ctx, b); err != nil {
				mux.Lock()
				errs = append(errs, err)
				mux.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()
	return errors.Join(errs...)
}

func (s *Service) scanBuilder(ctx context.Context, b *builder.Builder) error {
	vitals := builder.NewVitals(b)
	if vitals.Manual || !vitals.BuilderOK {
		return nil
	}
	err := s.step(ctx, vitals, s.agents(vitals))
	if err == nil {
		if b.FailureCount > 0 {
			return s.registry.ResetFailures(ctx, b.Name)
		}
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}
	return s.handleError(ctx, vitals, err)
}

func (s *Service) step(ctx context.Context, vitals builder.Vitals, ag agent.Agent) error {
	if vitals.HasJob() {
		report, err := ag.Status(ctx)
		if err != nil {
			return err
		}
		return s.coordinator.UpdateBuild(ctx, vitals, ag, report)
	}
	if vitals.CleanStatus != builder.CleanStatusClean {
		clean, err := s.coordinator.CleanBuilder(ctx, vitals, ag)
		if err != nil || !clean {
			return err
		}
		if err = s.coordinator.MarkClean(ctx, vitals); err != nil {
			return err
		}
		vitals.CleanStatus = builder.CleanStatusClean
	}
	if !vitals.Dispatchable() {
		return nil
	}
	item, err := s.coordinator.FindAndStartJob(ctx, vitals, ag)
	if item != nil && errors.Is(err, behaviour.ErrRequest) {
		s.logger.Warn("failing invalid build request", "builder", vitals.Name, "build_id", item.Cookie(), "error", err)
		return s.registry.CompleteBuild(ctx, item.ID, queue.Outcome{Status: queue.StatusFailedToBuild})
	}
	return err
}

func (s *Service) handleError(ctx context.Context, vitals builder.Vitals, err error) error {
	logger := s.logger.With("builder", vitals.Name, "error", err)
	if coordinator.IsFatal(err) {
		logger.Error("builder violated protocol")
		if failErr := s.failBuilder(ctx, vitals.Name, err.Error()); failErr != nil {
			return errors.Join(err, failErr)
		}
		return fmt.Errorf("%s: %w", vitals.Name, err)
	}
	if !coordinator.IsInfrastructure(err) {
		logger.Error("scan step failed")
		return fmt.Errorf("%s: %w", vitals.Name, err)
	}
	count, countErr := s.registry.RecordFailure(ctx, vitals.Name)
	if countErr != nil {
		return countErr
	}
	logger.Warn("builder failure", "failure_count", count)
	if count < s.config.FailureThreshold {
		return nil
	}
	return s.failBuilder(ctx, vitals.Name, fmt.Sprintf("%d consecutive failures, last: %v", count, err))
}

// failBuilder marks the builder unhealthy and returns its current job to the queue.
func (s *Service) failBuilder(ctx context.Context, name, reason string) error {
	b, err := s.registry.Builder(ctx, name)
	if err != nil {
		return err
	}
	if err = s.registry.FailBuilder(ctx, name, reason); err != nil {
		return err
	}
	s.logger.Warn("builder failed", "builder", name, "reason", reason)
	if b.CurrentItemID == "" {
		return nil
	}
	if err = s.registry.ResetItem(ctx, b.CurrentItemID); err != nil && !errors.Is(err, registry.ErrItemNotFound) {
		return err
	}
	return nil
}
