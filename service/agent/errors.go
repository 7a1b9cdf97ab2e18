package agent

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout matches every *TimeoutError.
	ErrTimeout = errors.New("agent: timeout")
	// ErrNoVMHost is returned by Resume on a client without a VM host.
	ErrNoVMHost = errors.New("agent: no vm host")
)

// FaultBuildRejected is the fault code reported when the agent does not
// start a dispatched build.
const FaultBuildRejected = 1

// TimeoutError reports a call that exceeded its allotted time.
type TimeoutError struct {
	Method string
	After  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("agent: %s timed out after %s", e.Method, e.After)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// Fault is a protocol-level error returned by the agent, or a non-2xx HTTP
// status (Code holds the status then).
type Fault struct {
	Code    int    `json:"code" cbor:"code"`
	Message string `json:"message" cbor:"message"`
}

func (e *Fault) Error() string {
	return fmt.Sprintf("agent fault %d: %s", e.Code, e.Message)
}

// CannotFetchFileError reports that the agent could not obtain a file.
type CannotFetchFileError struct {
	URL  string
	Info string
}

func (e *CannotFetchFileError) Error() string {
	return fmt.Sprintf("agent: cannot fetch %s: %s", e.URL, e.Info)
}

// ResumeError reports a resume command exiting with non-zero status.
type ResumeError struct {
	Command string
	Stdout  string
	Stderr  string
	Status  int
}

func (e *ResumeError) Error() string {
	return fmt.Sprintf("agent: resume command %q exited with %d: %s", e.Command, e.Status, e.Stderr)
}
