// Package registry defines the persisted-state boundary of the coordinator:
// builders and build queue items. Every write is durable when the call
// returns, so a caller that writes and then performs a network action has the
// write committed before the action starts.
package registry

import (
	"context"
	"errors"
	"sort"

	"github.com/viant/buildfarm/model/builder"
	"github.com/viant/buildfarm/model/queue"
)

var (
	// ErrBuilderNotFound is returned when no builder has the requested name.
	ErrBuilderNotFound = errors.New("registry: builder not found")
	// ErrItemNotFound is returned when no build queue item has the requested id.
	ErrItemNotFound = errors.New("registry: build queue item not found")
	// ErrItemNotAvailable is returned when claiming an item that is already
	// assigned or no longer waiting.
	ErrItemNotAvailable = errors.New("registry: build queue item not available")
)

// Registry is implemented by the memory and sqlite packages.
type Registry interface {
	// Builder returns the builder called name.
	Builder(ctx context.Context, name string) (*builder.Builder, error)
	// Builders returns all builders ordered by name.
	Builders(ctx context.Context) ([]*builder.Builder, error)
	// SaveBuilder creates or replaces a builder.
	SaveBuilder(ctx context.Context, b *builder.Builder) error
	// SetCleanStatus records a clean status transition and returns it.
	SetCleanStatus(ctx context.Context, name string, status builder.CleanStatus) (*builder.Transition, error)
	// FailBuilder marks a builder unhealthy with reason.
	FailBuilder(ctx context.Context, name, reason string) error
	// RecordFailure increments the failure counter and returns its new value.
	RecordFailure(ctx context.Context, name string) (int, error)
	// ResetFailures clears the failure counter.
	ResetFailures(ctx context.Context, name string) error

	// SaveItem creates or replaces a build queue item.
	SaveItem(ctx context.Context, item *queue.Item) error
	// Item returns the build queue item with id.
	Item(ctx context.Context, id string) (*queue.Item, error)
	// NextCandidate returns the best waiting item for the builder, or nil
	// when there is none.
	NextCandidate(ctx context.Context, vitals builder.Vitals) (*queue.Item, error)
	// MarkBuilding assigns the item to the builder and records it as the
	// builder's current job.
	MarkBuilding(ctx context.Context, itemID, builderName string) error
	// UpdateProgress forwards the incremental state of a running build.
	UpdateProgress(ctx context.Context, itemID string, progress queue.Progress) error
	// CompleteBuild records the terminal outcome and frees the builder.
	CompleteBuild(ctx context.Context, itemID string, outcome queue.Outcome) error
	// ResetItem returns an item to the waiting set and frees its builder.
	ResetItem(ctx context.Context, itemID string) error
}

// Eligible reports whether item may run on the builder described by vitals.
func Eligible(item *queue.Item, vitals builder.Vitals) bool {
	if item.Status != queue.StatusNeedsBuild || item.Builder != "" {
		return false
	}
	if item.Virtualized != vitals.Virtualized {
		return false
	}
	if item.Processor != "" && vitals.Processor != "" && item.Processor != vitals.Processor {
		return false
	}
	return true
}

// SortCandidates orders items by descending score, then creation time, then id.
func SortCandidates(items []*queue.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.DateCreated.Equal(b.DateCreated) {
			return a.DateCreated.Before(b.DateCreated)
		}
		return a.ID < b.ID
	})
}
