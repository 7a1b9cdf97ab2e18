package coordinator

import (
	"context"
	"fmt"

	"github.com/viant/buildfarm/model/builder"
	"github.com/viant/buildfarm/model/status"
	"github.com/viant/buildfarm/service/agent"
	"github.com/viant/buildfarm/tracing"
)

// CleanBuilder moves the builder towards a clean state. It returns true once
// the builder is known clean and false while cleaning is still in progress.
// The caller records CLEAN on true.
func (s *Service) CleanBuilder(ctx context.Context, vitals builder.Vitals, ag agent.Agent) (clean bool, err error) {
	ctx, span := tracing.StartSpan(ctx, "coordinator.cleanBuilder", tracing.KindInternal)
	span.WithAttributes(map[string]string{"builder": vitals.Name, "clean_status": string(vitals.CleanStatus)})
	defer func() { tracing.EndSpan(span, err) }()

	if vitals.Virtualized {
		return s.cleanVirtual(ctx, vitals, ag)
	}
	return s.cleanPhysical(ctx, vitals, ag)
}

func (s *Service) cleanVirtual(ctx context.Context, vitals builder.Vitals, ag agent.Agent) (bool, error) {
	switch vitals.VMResetProtocol {
	case builder.ResetProtocolSynchronous:
		if err := s.setCleanStatus(ctx, vitals.Name, builder.CleanStatusCleaning, "cleanBuilder"); err != nil {
			return false, err
		}
		if _, _, err := s.ResumeHost(ctx, vitals, ag); err != nil {
			return false, err
		}
		// A freshly resumed VM may drop the first packet it receives.
		if _, err := ag.Echo(ctx, "ping"); err != nil {
			return false, err
		}
		s.logger.Info("builder resumed", "builder", vitals.Name)
		return true, nil
	case builder.ResetProtocolAsynchronous:
		if vitals.CleanStatus == builder.CleanStatusDirty {
			if _, _, err := s.ResumeHost(ctx, vitals, ag); err != nil {
				return false, err
			}
			if err := s.setCleanStatus(ctx, vitals.Name, builder.CleanStatusCleaning, "cleanBuilder"); err != nil {
				return false, err
			}
			s.logger.Info("builder is being cleaned", "builder", vitals.Name)
		}
		return false, nil
	}
	return false, fmt.Errorf("%w: %q on %s", ErrInvalidResetProtocol, vitals.VMResetProtocol, vitals.Name)
}

func (s *Service) cleanPhysical(ctx context.Context, vitals builder.Vitals, ag agent.Agent) (bool, error) {
	report, err := ag.Status(ctx)
	if err != nil {
		return false, err
	}
	builderStatus, err := status.ParseBuilderStatus(report.BuilderStatus)
	if err != nil {
		return false, &BuildDaemonError{Builder: vitals.Name, Reason: "invalid status during cleaning", Err: err}
	}
	switch builderStatus {
	case status.BuilderIdle:
		return true, nil
	case status.BuilderBuilding:
		s.logger.Info("aborting leftover build", "builder", vitals.Name, "build_id", report.BuildID)
		return false, ag.Abort(ctx)
	case status.BuilderAborting:
		return false, nil
	case status.BuilderWaiting:
		if err = ag.Clean(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, &BuildDaemonError{Builder: vitals.Name, Reason: fmt.Sprintf("unexpected status %q during cleaning", builderStatus)}
}

// MarkClean records that CleanBuilder reported the builder clean.
func (s *Service) MarkClean(ctx context.Context, vitals builder.Vitals) error {
	return s.setCleanStatus(ctx, vitals.Name, builder.CleanStatusClean, "markClean")
}
