package builder

import (
	"fmt"
	"strings"
	"time"
)

// CleanStatus tracks whether a builder is safe to receive a new job.
type CleanStatus string

const (
	// CleanStatusDirty means the builder still carries a previous job or was never prepared.
	CleanStatusDirty CleanStatus = "DIRTY"
	// CleanStatusCleaning means sanitisation has been triggered and is in progress.
	CleanStatusCleaning CleanStatus = "CLEANING"
	// CleanStatusClean means the builder may accept a new job.
	CleanStatusClean CleanStatus = "CLEAN"
)

// ParseCleanStatus converts text into a CleanStatus.
func ParseCleanStatus(text string) (CleanStatus, error) {
	switch s := CleanStatus(strings.ToUpper(strings.TrimSpace(text))); s {
	case CleanStatusDirty, CleanStatusCleaning, CleanStatusClean:
		return s, nil
	}
	return "", fmt.Errorf("invalid clean status %q", text)
}

// ResetProtocol is the contract used to power-cycle a virtualized builder.
type ResetProtocol string

const (
	// ResetProtocolNone is used by non-virtualized builders.
	ResetProtocolNone ResetProtocol = ""
	// ResetProtocolSynchronous (1.1): the resume command returns once the VM is back.
	ResetProtocolSynchronous ResetProtocol = "1.1"
	// ResetProtocolAsynchronous (2.0): the resume command only triggers the reset;
	// an external lifecycle owner flips the builder to CLEAN.
	ResetProtocolAsynchronous ResetProtocol = "2.0"
)

// Builder is the persisted record of a build agent. It is owned by the
// registry; the coordinator mutates it only through registry writes.
type Builder struct {
	Name                   string        `json:"name" yaml:"name"`
	URL                    string        `json:"url" yaml:"url"`
	Processor              string        `json:"processor,omitempty" yaml:"processor,omitempty"`
	Virtualized            bool          `json:"virtualized" yaml:"virtualized"`
	VMHost                 string        `json:"vmHost,omitempty" yaml:"vmHost,omitempty"`
	VMResetProtocol        ResetProtocol `json:"vmResetProtocol,omitempty" yaml:"vmResetProtocol,omitempty"`
	BuilderOK              bool          `json:"builderOK" yaml:"builderOK"`
	FailNotes              string        `json:"failNotes,omitempty" yaml:"failNotes,omitempty"`
	FailureCount           int           `json:"failureCount,omitempty" yaml:"failureCount,omitempty"`
	Manual                 bool          `json:"manual" yaml:"manual"`
	CleanStatus            CleanStatus   `json:"cleanStatus" yaml:"cleanStatus"`
	CurrentItemID          string        `json:"currentItemID,omitempty" yaml:"currentItemID,omitempty"`
	Version                string        `json:"version,omitempty" yaml:"version,omitempty"`
	DateCleanStatusChanged time.Time     `json:"dateCleanStatusChanged,omitempty" yaml:"dateCleanStatusChanged,omitempty"`
}

// Clone returns a copy safe to hand out of a registry.
func (b *Builder) Clone() *Builder {
	if b == nil {
		return nil
	}
	ret := *b
	return &ret
}

// Transition describes a clean status change of a builder.
type Transition struct {
	Builder string      `json:"builder"`
	From    CleanStatus `json:"from"`
	To      CleanStatus `json:"to"`
	At      time.Time   `json:"at"`
}
