// Package behaviour holds the build-kind specific strategies: verifying a
// build request, dispatching it to an agent and handling its terminal status.
package behaviour

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/viant/buildfarm/internal/logging"
	"github.com/viant/buildfarm/model/builder"
	"github.com/viant/buildfarm/model/queue"
	"github.com/viant/buildfarm/model/status"
	"github.com/viant/buildfarm/service/agent"
	"github.com/viant/buildfarm/service/registry"
	"github.com/viant/buildfarm/service/secret"
)

var (
	// ErrUnknownKind is returned for a queue item kind with no registered factory.
	ErrUnknownKind = errors.New("behaviour: unknown build kind")
	// ErrRequest matches every *RequestError.
	ErrRequest = errors.New("behaviour: invalid build request")
	// ErrUnknownBuildStatus is returned for a terminal status no behaviour handles.
	ErrUnknownBuildStatus = errors.New("behaviour: unknown build status")
)

// RequestError reports a build request that cannot be dispatched as is.
type RequestError struct {
	ItemID string
	Reason string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("build request %s: %s", e.ItemID, e.Reason)
}

func (e *RequestError) Is(target error) bool { return target == ErrRequest }

// Behaviour drives one build queue item.
type Behaviour interface {
	// Verify checks the request before any builder state changes.
	Verify(ctx context.Context) error
	// Dispatch makes the agent start the build.
	Dispatch(ctx context.Context, ag agent.Agent) error
	// HandleStatus records the terminal outcome reported by a WAITING agent.
	HandleStatus(ctx context.Context, ag agent.Agent, buildStatus string, report *status.Report) error
}

// Deps are the collaborators shared by every behaviour.
type Deps struct {
	Registry registry.Registry
	Secrets  secret.Resolver
	// UploadRoot receives gathered build results under <cookie>/.
	UploadRoot string
	// LibrarianURL is the base URL of chroot and source downloads lacking an explicit URL.
	LibrarianURL string
	Logger       *slog.Logger
}

// Factory creates the behaviour for item running on the builder described by vitals.
type Factory func(item *queue.Item, vitals builder.Vitals, deps *Deps) (Behaviour, error)

// Registry maps queue item kinds to factories.
type Registry struct {
	deps      *Deps
	mux       sync.RWMutex
	factories map[queue.Kind]Factory
}

// NewRegistry creates an empty registry passing deps to every factory.
func NewRegistry(deps *Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	return &Registry{deps: deps, factories: map[queue.Kind]Factory{}}
}

// Register binds kind to factory.
func (r *Registry) Register(kind queue.Kind, factory Factory) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.factories[kind] = factory
}

// Lookup returns the factory for kind.
func (r *Registry) Lookup(kind queue.Kind) (Factory, bool) {
	r.mux.RLock()
	defer r.mux.RUnlock()
	factory, ok := r.factories[kind]
	return factory, ok
}

// New creates the behaviour for item.
func (r *Registry) New(item *queue.Item, vitals builder.Vitals) (Behaviour, error) {
	factory, ok := r.Lookup(item.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q (item %s)", ErrUnknownKind, item.Kind, item.ID)
	}
	return factory(item, vitals, r.deps)
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return logging.Discard()
	}
	return d.Logger
}

// Deps returns the shared collaborators.
func (r *Registry) Deps() *Deps { return r.deps }

// ChrootURL returns the chroot download URL, defaulting to the librarian.
func (d *Deps) ChrootURL(item *queue.Item) string {
	if item.Chroot.URL != "" {
		return item.Chroot.URL
	}
	return d.LibrarianFileURL(item.Chroot.Digest)
}

// LibrarianFileURL returns the librarian download URL of digest.
func (d *Deps) LibrarianFileURL(digest string) string {
	return strings.TrimRight(d.LibrarianURL, "/") + "/" + digest
}

// EnsureChroot asks the agent to cache the item's chroot tarball.
func EnsureChroot(ctx context.Context, ag agent.Agent, item *queue.Item, deps *Deps) error {
	_, _, err := ag.EnsurePresent(ctx, item.Chroot.Digest, deps.ChrootURL(item), "", "")
	return err
}
