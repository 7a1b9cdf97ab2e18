package coordinator

import (
	"context"
	"errors"

	"github.com/viant/buildfarm/model/builder"
	"github.com/viant/buildfarm/service/agent"
	"github.com/viant/buildfarm/tracing"
)

// ResumeHost power-cycles the virtual machine of the builder and returns the
// resume command output. Every failure, a timeout included, is reported as a
// *CannotResumeHostError.
func (s *Service) ResumeHost(ctx context.Context, vitals builder.Vitals, ag agent.Agent) (stdout, stderr string, err error) {
	ctx, span := tracing.StartSpan(ctx, "coordinator.resumeHost", tracing.KindInternal)
	span.WithAttributes(map[string]string{"builder": vitals.Name})
	defer func() { tracing.EndSpan(span, err) }()

	if !vitals.Virtualized {
		return "", "", &CannotResumeHostError{Builder: vitals.Name, Reason: "builder is not virtualized"}
	}
	if vitals.VMHost == "" {
		return "", "", &CannotResumeHostError{Builder: vitals.Name, Reason: "undefined vm_host"}
	}
	s.logger.Info("resuming builder host", "builder", vitals.Name, "vm_host", vitals.VMHost)
	stdout, stderr, err = ag.Resume(ctx)
	if err != nil {
		resumeErr := &CannotResumeHostError{Builder: vitals.Name, Reason: "resume failed", Stdout: stdout, Stderr: stderr, Err: err}
		var cmdErr *agent.ResumeError
		if errors.As(err, &cmdErr) {
			resumeErr.Stdout, resumeErr.Stderr = cmdErr.Stdout, cmdErr.Stderr
		}
		s.logger.Warn("failed to resume builder host", "builder", vitals.Name, "error", err)
		return resumeErr.Stdout, resumeErr.Stderr, resumeErr
	}
	return stdout, stderr, nil
}
