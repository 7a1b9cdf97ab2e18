package builder

// Vitals is an immutable snapshot of a Builder taken once per coordination
// step, so that asynchronous flows never re-read mutable shared state. All
// writes go back through the registry, never through Vitals.
type Vitals struct {
	Name            string
	URL             string
	Processor       string
	Virtualized     bool
	VMHost          string
	VMResetProtocol ResetProtocol
	BuilderOK       bool
	Manual          bool
	CleanStatus     CleanStatus
	CurrentItemID   string
	Version         string
}

// NewVitals copies the relevant attributes of b.
func NewVitals(b *Builder) Vitals {
	return Vitals{
		Name:            b.Name,
		URL:             b.URL,
		Processor:       b.Processor,
		Virtualized:     b.Virtualized,
		VMHost:          b.VMHost,
		VMResetProtocol: b.VMResetProtocol,
		BuilderOK:       b.BuilderOK,
		Manual:          b.Manual,
		CleanStatus:     b.CleanStatus,
		CurrentItemID:   b.CurrentItemID,
		Version:         b.Version,
	}
}

// HasJob reports whether a build queue item is assigned to the builder.
func (v Vitals) HasJob() bool { return v.CurrentItemID != "" }

// Dispatchable reports whether a job may be dispatched to the builder: it
// must be healthy, automatic and CLEAN.
func (v Vitals) Dispatchable() bool {
	return v.BuilderOK && !v.Manual && v.CleanStatus == CleanStatusClean
}
