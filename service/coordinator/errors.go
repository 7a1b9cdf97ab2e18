package coordinator

import (
	"errors"
	"fmt"
	"net"

	"github.com/viant/buildfarm/model/builder"
	"github.com/viant/buildfarm/model/status"
	"github.com/viant/buildfarm/service/agent"
	"github.com/viant/buildfarm/service/behaviour"
	"github.com/viant/buildfarm/service/hostexec"
)

var (
	// ErrCannotResumeHost matches every *CannotResumeHostError.
	ErrCannotResumeHost = errors.New("coordinator: cannot resume host")
	// ErrBuildDaemon matches every *BuildDaemonError.
	ErrBuildDaemon = errors.New("coordinator: build daemon protocol violation")
	// ErrIsolation matches every *IsolationError.
	ErrIsolation = errors.New("coordinator: builder isolation violated")
	// ErrInvalidResetProtocol is returned when a virtualized builder has no
	// usable VM reset protocol.
	ErrInvalidResetProtocol = errors.New("coordinator: invalid vm reset protocol")
)

// CannotResumeHostError reports a failed attempt to power-cycle a builder's
// virtual machine. Stdout and Stderr hold whatever the resume command printed.
type CannotResumeHostError struct {
	Builder string
	Reason  string
	Stdout  string
	Stderr  string
	Err     error
}

func (e *CannotResumeHostError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot resume %s: %s: %v", e.Builder, e.Reason, e.Err)
	}
	return fmt.Sprintf("cannot resume %s: %s", e.Builder, e.Reason)
}

func (e *CannotResumeHostError) Is(target error) bool { return target == ErrCannotResumeHost }

func (e *CannotResumeHostError) Unwrap() error { return e.Err }

// BuildDaemonError reports an agent answer outside the protocol.
type BuildDaemonError struct {
	Builder string
	Reason  string
	Err     error
}

func (e *BuildDaemonError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("build daemon %s: %s: %v", e.Builder, e.Reason, e.Err)
	}
	return fmt.Sprintf("build daemon %s: %s", e.Builder, e.Reason)
}

func (e *BuildDaemonError) Is(target error) bool { return target == ErrBuildDaemon }

func (e *BuildDaemonError) Unwrap() error { return e.Err }

// IsolationError reports an attempt to dispatch to an unhealthy or unclean builder.
type IsolationError struct {
	Builder     string
	BuilderOK   bool
	CleanStatus builder.CleanStatus
}

func (e *IsolationError) Error() string {
	return fmt.Sprintf("attempted to start build on %s with builderok=%v clean_status=%s", e.Builder, e.BuilderOK, e.CleanStatus)
}

func (e *IsolationError) Is(target error) bool { return target == ErrIsolation }

// IsFatal reports protocol and isolation violations. They mean an invariant
// is broken and must never be retried.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range []error{
		ErrBuildDaemon,
		ErrIsolation,
		ErrInvalidResetProtocol,
		status.ErrMalformedBuildStatus,
		status.ErrUnknownBuilderStatus,
		behaviour.ErrUnknownBuildStatus,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsInfrastructure reports failures of the agent, its host or the network.
// The driver counts them against the builder and retries on the next scan.
func IsInfrastructure(err error) bool {
	if err == nil || IsFatal(err) {
		return false
	}
	if errors.Is(err, agent.ErrTimeout) || errors.Is(err, hostexec.ErrTimeout) || errors.Is(err, ErrCannotResumeHost) {
		return true
	}
	var fetchErr *agent.CannotFetchFileError
	var resumeErr *agent.ResumeError
	var fault *agent.Fault
	var netErr net.Error
	return errors.As(err, &fetchErr) || errors.As(err, &resumeErr) || errors.As(err, &fault) || errors.As(err, &netErr)
}
