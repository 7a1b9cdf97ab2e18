package status

import (
	"errors"
	"fmt"
	"strings"
)

// BuilderStatus is the agent's own state as reported by the status RPC.
type BuilderStatus string

const (
	BuilderIdle     BuilderStatus = "BuilderStatus.IDLE"
	BuilderBuilding BuilderStatus = "BuilderStatus.BUILDING"
	BuilderAborting BuilderStatus = "BuilderStatus.ABORTING"
	BuilderWaiting  BuilderStatus = "BuilderStatus.WAITING"
)

// Build status names carried (after the BuildStatus. prefix) by a WAITING report.
const (
	BuildOK          = "OK"
	BuildPackageFail = "PACKAGEFAIL"
	BuildDepFail     = "DEPFAIL"
	BuildChrootFail  = "CHROOTFAIL"
	BuildBuilderFail = "BUILDERFAIL"
	BuildGivenBack   = "GIVENBACK"
	BuildAborted     = "ABORTED"
)

const buildStatusPrefix = "BuildStatus."

var (
	// ErrUnknownBuilderStatus is returned for a builder_status outside the
	// known enumeration.
	ErrUnknownBuilderStatus = errors.New("unknown builder status")
	// ErrMalformedBuildStatus is returned when build_status lacks the
	// BuildStatus. prefix.
	ErrMalformedBuildStatus = errors.New("malformed build status")
)

// ParseBuilderStatus validates text against the known builder states.
func ParseBuilderStatus(text string) (BuilderStatus, error) {
	switch s := BuilderStatus(text); s {
	case BuilderIdle, BuilderBuilding, BuilderAborting, BuilderWaiting:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBuilderStatus, text)
}

// Report is the agent's reply to the status RPC.
type Report struct {
	BuilderStatus string            `json:"builder_status"`
	BuildID       string            `json:"build_id,omitempty"`
	BuildStatus   string            `json:"build_status,omitempty"`
	Logtail       string            `json:"logtail,omitempty"`
	FileMap       map[string]string `json:"filemap,omitempty"`
	Dependencies  string            `json:"dependencies,omitempty"`
}

// ExtractBuildStatus returns NAME from a "BuildStatus.NAME" build status. A
// missing prefix is a protocol violation.
func ExtractBuildStatus(report *Report) (string, error) {
	if report == nil {
		return "", fmt.Errorf("%w: no report", ErrMalformedBuildStatus)
	}
	name, ok := strings.CutPrefix(report.BuildStatus, buildStatusPrefix)
	if !ok || name == "" {
		return "", fmt.Errorf("%w: %q", ErrMalformedBuildStatus, report.BuildStatus)
	}
	return name, nil
}
