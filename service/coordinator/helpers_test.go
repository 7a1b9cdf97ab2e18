package coordinator_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/viant/buildfarm/model/builder"
	"github.com/viant/buildfarm/model/queue"
	"github.com/viant/buildfarm/service/agent/agenttest"
	"github.com/viant/buildfarm/service/behaviour"
	"github.com/viant/buildfarm/service/behaviour/binarypackage"
	"github.com/viant/buildfarm/service/behaviour/recipe"
	"github.com/viant/buildfarm/service/coordinator"
	"github.com/viant/buildfarm/service/registry"
	"github.com/viant/buildfarm/service/registry/memory"
	"github.com/viant/buildfarm/service/registry/registrytest"
)

// journal interleaves registry commits and agent calls.
type journal struct {
	mux     sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mux.Lock()
	defer j.mux.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) list() []string {
	j.mux.Lock()
	defer j.mux.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) reset() {
	j.mux.Lock()
	defer j.mux.Unlock()
	j.entries = nil
}

func (j *journal) index(entry string) int {
	for i, candidate := range j.list() {
		if candidate == entry {
			return i
		}
	}
	return -1
}

type recordingRegistry struct {
	registry.Registry
	journal *journal
}

func (r *recordingRegistry) SetCleanStatus(ctx context.Context, name string, cleanStatus builder.CleanStatus) (*builder.Transition, error) {
	transition, err := r.Registry.SetCleanStatus(ctx, name, cleanStatus)
	if err == nil {
		r.journal.add("commit:" + string(cleanStatus))
	}
	return transition, err
}

func (r *recordingRegistry) MarkBuilding(ctx context.Context, itemID, builderName string) error {
	err := r.Registry.MarkBuilding(ctx, itemID, builderName)
	if err == nil {
		r.journal.add("commit:markBuilding")
	}
	return err
}

type fixture struct {
	journal    *journal
	registry   *recordingRegistry
	agent      *agenttest.Fake
	service    *coordinator.Service
	uploadRoot string
}

func newFixture(t *testing.T, b *builder.Builder, opts ...coordinator.Option) *fixture {
	t.Helper()
	j := &journal{}
	reg := &recordingRegistry{Registry: memory.New(), journal: j}
	require.NoError(t, reg.SaveBuilder(context.Background(), b))
	uploadRoot := t.TempDir()
	behaviours := behaviour.NewRegistry(&behaviour.Deps{
		Registry:     reg,
		UploadRoot:   uploadRoot,
		LibrarianURL: "http://librarian.buildd/",
	})
	binarypackage.Register(behaviours)
	recipe.Register(behaviours)
	fake := agenttest.NewFake(b.URL)
	fake.OnCall = j.add
	return &fixture{journal: j, registry: reg, agent: fake, service: coordinator.New(reg, behaviours, opts...), uploadRoot: uploadRoot}
}

func (f *fixture) vitals(t *testing.T, name string) builder.Vitals {
	t.Helper()
	b, err := f.registry.Builder(context.Background(), name)
	require.NoError(t, err)
	return builder.NewVitals(b)
}

func (f *fixture) item(t *testing.T, id string) *queue.Item {
	t.Helper()
	item, err := f.registry.Item(context.Background(), id)
	require.NoError(t, err)
	return item
}

func bob(mutate func(b *builder.Builder)) *builder.Builder {
	ret := registrytest.Bob()
	if mutate != nil {
		mutate(ret)
	}
	return ret
}

func helloItem() *queue.Item {
	return &queue.Item{
		ID: "1", Kind: queue.KindBinaryPackage, BuildID: "100", Score: 10,
		Processor: "amd64", Virtualized: true, Suite: "noble",
		Chroot:  queue.Chroot{Digest: "chroot-sha"},
		Files:   []queue.File{{Name: "hello_1.0.dsc", Digest: "dsc-sha"}, {Name: "hello_1.0.tar.gz", Digest: "tar-sha"}},
		Archive: queue.Archive{Name: "primary", URL: "http://archive.buildd/ubuntu", Purpose: "PRIMARY", Component: "main"},
	}
}
