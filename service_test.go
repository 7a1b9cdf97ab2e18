package buildfarm_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/buildfarm"
	"github.com/viant/buildfarm/internal/logging"
	"github.com/viant/buildfarm/model/builder"
	"github.com/viant/buildfarm/model/queue"
	"github.com/viant/buildfarm/model/status"
	"github.com/viant/buildfarm/service/agent"
	"github.com/viant/buildfarm/service/agent/agenttest"
	"github.com/viant/buildfarm/service/event"
	"github.com/viant/buildfarm/service/secret"
)

type transitions struct {
	mux   sync.Mutex
	items []builder.Transition
}

func (r *transitions) handle(_ context.Context, e *event.Event[builder.Transition]) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.items = append(r.items, e.Data)
	return nil
}

func (r *transitions) list() []builder.Transition {
	r.mux.Lock()
	defer r.mux.Unlock()
	return append([]builder.Transition(nil), r.items...)
}

func newConfig(t *testing.T, builders ...*builder.Builder) *buildfarm.Config {
	config := buildfarm.DefaultConfig()
	config.Artifacts.UploadRoot = filepath.Join(t.TempDir(), "upload")
	config.Artifacts.LibrarianURL = "http://librarian.buildd/"
	config.Agent.TimeoutMs = 2000
	config.Builders = builders
	return config
}

func TestService_BuildLifecycle(t *testing.T) {
	ctx := context.Background()
	server := agenttest.New()
	defer server.Close()
	server.AddFile("deb-sha", []byte("hello deb"))

	recorder := &transitions{}
	config := newConfig(t, &builder.Builder{Name: "frog", URL: server.URL, Processor: "amd64", BuilderOK: true})
	srv, err := buildfarm.New(ctx, config,
		buildfarm.WithLogger(logging.Discard()),
		buildfarm.WithSecrets(secret.Static{}),
		buildfarm.WithTransitionHandler(recorder.handle))
	require.NoError(t, err)
	defer srv.Close()

	require.NoError(t, srv.Registry().SaveItem(ctx, &queue.Item{
		ID: "1", Kind: queue.KindBinaryPackage, BuildID: "100", Processor: "amd64", Suite: "noble",
		Chroot:  queue.Chroot{Digest: "chroot-sha"},
		Files:   []queue.File{{Name: "hello_1.0.dsc", Digest: "dsc-sha"}},
		Archive: queue.Archive{Name: "primary", Purpose: "PRIMARY", Component: "main"},
	}))

	require.NoError(t, srv.Scan(ctx))
	assert.Equal(t, 1, server.Count(agent.MethodBuild))
	item, err := srv.Registry().Item(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusBuilding, item.Status)

	server.SetStatus(status.Report{
		BuilderStatus: string(status.BuilderWaiting),
		BuildID:       "100-1",
		BuildStatus:   "BuildStatus.OK",
		FileMap:       map[string]string{"hello_1.0_amd64.deb": "deb-sha"},
	})
	require.NoError(t, srv.Scan(ctx))
	item, err = srv.Registry().Item(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFullyBuilt, item.Status)
	assert.Equal(t, filepath.Join(config.Artifacts.UploadRoot, "100-1", "hello_1.0_amd64.deb"), item.Results["hello_1.0_amd64.deb"])

	frog, err := srv.Registry().Builder(ctx, "frog")
	require.NoError(t, err)
	assert.Empty(t, frog.CurrentItemID)
	assert.Equal(t, builder.CleanStatusDirty, frog.CleanStatus)

	assert.Eventually(t, func() bool { return len(recorder.list()) == 2 }, time.Second, 5*time.Millisecond)
	actual := recorder.list()
	assert.Equal(t, builder.CleanStatusClean, actual[0].To)
	assert.Equal(t, builder.CleanStatusDirty, actual[1].To)
}

func TestService_SeedsBuildersOnce(t *testing.T) {
	ctx := context.Background()
	config := newConfig(t, &builder.Builder{Name: "frog", URL: "http://frog.buildd:8221/", BuilderOK: true})
	config.Registry.Vendor = buildfarm.RegistrySQLite
	config.Registry.Path = filepath.Join(t.TempDir(), "registry.db")

	srv, err := buildfarm.New(ctx, config, buildfarm.WithLogger(logging.Discard()))
	require.NoError(t, err)
	_, err = srv.Registry().SetCleanStatus(ctx, "frog", builder.CleanStatusClean)
	require.NoError(t, err)
	require.NoError(t, srv.Close())

	srv, err = buildfarm.New(ctx, config, buildfarm.WithLogger(logging.Discard()))
	require.NoError(t, err)
	defer srv.Close()
	frog, err := srv.Registry().Builder(ctx, "frog")
	require.NoError(t, err)
	assert.Equal(t, builder.CleanStatusClean, frog.CleanStatus)
}

func TestService_AgentFor(t *testing.T) {
	srv, err := buildfarm.New(context.Background(), newConfig(t), buildfarm.WithLogger(logging.Discard()))
	require.NoError(t, err)
	defer srv.Close()

	vitals := builder.Vitals{Name: "bob", URL: "http://bob.buildd:8221/", VMHost: "bob-host"}
	first := srv.AgentFor(vitals)
	assert.Same(t, first, srv.AgentFor(vitals))
	assert.Equal(t, "http://bob.buildd:8221", first.URL())

	vitals.VMHost = "other-host"
	assert.NotSame(t, first, srv.AgentFor(vitals))
}

func TestService_StartShutdown(t *testing.T) {
	config := newConfig(t)
	config.Scanner.PollIntervalMs = 5
	srv, err := buildfarm.New(context.Background(), config, buildfarm.WithLogger(logging.Discard()))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Start(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, srv.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("service did not stop")
	}
}
