package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/viant/buildfarm/model/builder"
	"github.com/viant/buildfarm/model/queue"
	"github.com/viant/buildfarm/service/agent"
	"github.com/viant/buildfarm/service/behaviour"
	"github.com/viant/buildfarm/tracing"
)

// FindAndStartJob claims the best candidate for the builder and dispatches it.
// It returns (nil, nil) when nothing is waiting. Once an item is returned
// together with an error, that error relates to the returned item: request
// errors leave the builder untouched, a dispatch failure returns the item to
// the queue and leaves the builder DIRTY without a job.
func (s *Service) FindAndStartJob(ctx context.Context, vitals builder.Vitals, ag agent.Agent) (item *queue.Item, err error) {
	ctx, span := tracing.StartSpan(ctx, "coordinator.findAndStartJob", tracing.KindInternal)
	span.WithAttributes(map[string]string{"builder": vitals.Name})
	defer func() { tracing.EndSpan(span, err) }()

	candidate, err := s.registry.NextCandidate(ctx, vitals)
	if err != nil || candidate == nil {
		return nil, err
	}
	logger := s.logger.With("builder", vitals.Name, "build_id", candidate.Cookie())
	job, err := s.behaviours.New(candidate, vitals)
	if err != nil {
		if errors.Is(err, behaviour.ErrUnknownKind) {
			err = &behaviour.RequestError{ItemID: candidate.ID, Reason: err.Error()}
		}
		return candidate, err
	}
	if err = job.Verify(ctx); err != nil {
		logger.Info("build request rejected", "error", err)
		return candidate, err
	}
	if !vitals.BuilderOK || vitals.CleanStatus != builder.CleanStatusClean {
		err = &IsolationError{Builder: vitals.Name, BuilderOK: vitals.BuilderOK, CleanStatus: vitals.CleanStatus}
		logger.Error("refusing to dispatch", "error", err)
		return candidate, err
	}
	if err = s.registry.MarkBuilding(ctx, candidate.ID, vitals.Name); err != nil {
		return candidate, err
	}
	if err = s.setCleanStatus(ctx, vitals.Name, builder.CleanStatusDirty, "findAndStartJob"); err != nil {
		return candidate, err
	}
	if err = job.Dispatch(ctx, ag); err != nil {
		logger.Warn("dispatch failed, requeueing", "error", err)
		err = fmt.Errorf("dispatch %s to %s: %w", candidate.Cookie(), vitals.Name, err)
		if resetErr := s.registry.ResetItem(context.WithoutCancel(ctx), candidate.ID); resetErr != nil {
			err = errors.Join(err, fmt.Errorf("requeue %s: %w", candidate.Cookie(), resetErr))
		}
		return candidate, err
	}
	logger.Info("build dispatched", "kind", candidate.Kind)
	return candidate, nil
}
