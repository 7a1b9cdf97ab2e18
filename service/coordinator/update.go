package coordinator

import (
	"context"
	"fmt"

	"github.com/viant/buildfarm/model/builder"
	"github.com/viant/buildfarm/model/queue"
	"github.com/viant/buildfarm/model/status"
	"github.com/viant/buildfarm/service/agent"
	"github.com/viant/buildfarm/tracing"
)

// UpdateBuild folds the agent status report into the builder's current job.
func (s *Service) UpdateBuild(ctx context.Context, vitals builder.Vitals, ag agent.Agent, report *status.Report) (err error) {
	ctx, span := tracing.StartSpan(ctx, "coordinator.updateBuild", tracing.KindInternal)
	span.WithAttributes(map[string]string{"builder": vitals.Name, "item": vitals.CurrentItemID})
	defer func() { tracing.EndSpan(span, err) }()

	if report == nil {
		return &BuildDaemonError{Builder: vitals.Name, Reason: "missing status report"}
	}
	if !vitals.HasJob() {
		return &BuildDaemonError{Builder: vitals.Name, Reason: "status update without a current job"}
	}
	item, err := s.registry.Item(ctx, vitals.CurrentItemID)
	if err != nil {
		return err
	}
	if report.BuildID != "" && report.BuildID != item.Cookie() {
		return &BuildDaemonError{Builder: vitals.Name, Reason: fmt.Sprintf("reports build %q, expected %q", report.BuildID, item.Cookie())}
	}
	builderStatus, err := status.ParseBuilderStatus(report.BuilderStatus)
	if err != nil {
		return &BuildDaemonError{Builder: vitals.Name, Reason: "invalid status", Err: err}
	}
	switch builderStatus {
	case status.BuilderBuilding, status.BuilderAborting:
		return s.registry.UpdateProgress(ctx, item.ID, queue.Progress{Logtail: report.Logtail})
	case status.BuilderWaiting:
		buildStatus, err := ExtractBuildStatus(report)
		if err != nil {
			return &BuildDaemonError{Builder: vitals.Name, Reason: "invalid build status", Err: err}
		}
		job, err := s.behaviours.New(item, vitals)
		if err != nil {
			return err
		}
		return job.HandleStatus(ctx, ag, buildStatus, report)
	}
	return &BuildDaemonError{Builder: vitals.Name, Reason: fmt.Sprintf("unexpected status %q for build %s", builderStatus, item.Cookie())}
}
