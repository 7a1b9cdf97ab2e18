package behaviour_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/buildfarm/model/builder"
	"github.com/viant/buildfarm/model/queue"
	"github.com/viant/buildfarm/model/status"
	"github.com/viant/buildfarm/service/agent"
	"github.com/viant/buildfarm/service/agent/agenttest"
	"github.com/viant/buildfarm/service/behaviour"
	"github.com/viant/buildfarm/service/registry/memory"
	"github.com/viant/buildfarm/service/registry/registrytest"
)

func setup(t *testing.T) (*memory.Service, *behaviour.Base) {
	t.Helper()
	ctx := context.Background()
	reg := memory.New()
	require.NoError(t, reg.SaveBuilder(ctx, registrytest.Bob()))
	item := &queue.Item{ID: "7", Kind: queue.KindBinaryPackage, BuildID: "700", Virtualized: true}
	require.NoError(t, reg.SaveItem(ctx, item))
	require.NoError(t, reg.MarkBuilding(ctx, "7", "bob"))
	bob, err := reg.Builder(ctx, "bob")
	require.NoError(t, err)
	return reg, &behaviour.Base{
		Item:   item,
		Vitals: builder.NewVitals(bob),
		Deps:   &behaviour.Deps{Registry: reg, UploadRoot: t.TempDir()},
	}
}

func TestBase_HandleStatus(t *testing.T) {
	testCases := []struct {
		description   string
		buildStatus   string
		report        *status.Report
		expectStatus  queue.Status
		expectBuilder string
		expectFailed  bool
	}{
		{description: "package failure", buildStatus: status.BuildPackageFail, expectStatus: queue.StatusFailedToBuild, expectBuilder: "bob"},
		{description: "dependency wait", buildStatus: status.BuildDepFail, report: &status.Report{Dependencies: "libfoo (>= 2)"}, expectStatus: queue.StatusManualDepWait, expectBuilder: "bob"},
		{description: "chroot failure", buildStatus: status.BuildChrootFail, expectStatus: queue.StatusChrootWait, expectBuilder: "bob"},
		{description: "aborted", buildStatus: status.BuildAborted, expectStatus: queue.StatusCancelled, expectBuilder: "bob"},
		{description: "given back", buildStatus: status.BuildGivenBack, expectStatus: queue.StatusNeedsBuild},
		{description: "builder failure", buildStatus: status.BuildBuilderFail, expectStatus: queue.StatusNeedsBuild, expectFailed: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			ctx := context.Background()
			reg, base := setup(t)
			report := testCase.report
			if report == nil {
				report = &status.Report{}
			}
			require.NoError(t, reg.UpdateProgress(ctx, "7", queue.Progress{Logtail: "tail"}))
			require.NoError(t, base.HandleStatus(ctx, agenttest.NewFake("http://bob:8221"), testCase.buildStatus, report))

			item, err := reg.Item(ctx, "7")
			require.NoError(t, err)
			assert.Equal(t, testCase.expectStatus, item.Status)
			assert.Equal(t, testCase.expectBuilder, item.Builder)
			if testCase.expectStatus == queue.StatusManualDepWait {
				assert.Equal(t, "libfoo (>= 2)", item.Dependencies)
			}
			bob, err := reg.Builder(ctx, "bob")
			require.NoError(t, err)
			assert.Empty(t, bob.CurrentItemID)
			assert.Equal(t, !testCase.expectFailed, bob.BuilderOK)
		})
	}
}

func TestBase_HandleStatusOK(t *testing.T) {
	ctx := context.Background()
	reg, base := setup(t)
	fake := agenttest.NewFake("http://bob:8221")
	fake.Files["deb-sha"] = []byte("deb")
	fake.Files["changes-sha"] = []byte("changes")

	report := &status.Report{FileMap: map[string]string{"hello.deb": "deb-sha", "hello.changes": "changes-sha"}}
	require.NoError(t, base.HandleStatus(ctx, fake, status.BuildOK, report))

	item, err := reg.Item(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFullyBuilt, item.Status)
	dir := filepath.Join(base.Deps.UploadRoot, "700-7")
	assert.Equal(t, map[string]string{
		"hello.deb":     filepath.Join(dir, "hello.deb"),
		"hello.changes": filepath.Join(dir, "hello.changes"),
	}, item.Results)
	data, err := os.ReadFile(filepath.Join(dir, "hello.deb"))
	require.NoError(t, err)
	assert.Equal(t, "deb", string(data))
}

func TestBase_HandleStatusUploadFailure(t *testing.T) {
	testCases := []struct {
		description string
		fileMap     map[string]string
	}{
		{description: "missing file", fileMap: map[string]string{"hello.deb": "unknown-sha"}},
		{description: "path traversal", fileMap: map[string]string{"../escape.deb": "deb-sha"}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			ctx := context.Background()
			reg, base := setup(t)
			fake := agenttest.NewFake("http://bob:8221")
			fake.Files["deb-sha"] = []byte("deb")

			require.NoError(t, base.HandleStatus(ctx, fake, status.BuildOK, &status.Report{FileMap: testCase.fileMap}))
			item, err := reg.Item(ctx, "7")
			require.NoError(t, err)
			assert.Equal(t, queue.StatusFailedUpload, item.Status)
			assert.Empty(t, item.Results)
		})
	}
}

func TestBase_HandleStatusUnknown(t *testing.T) {
	_, base := setup(t)
	err := base.HandleStatus(context.Background(), agenttest.NewFake("http://bob:8221"), "EXPLODED", &status.Report{})
	assert.ErrorIs(t, err, behaviour.ErrUnknownBuildStatus)
}

func TestRegistry_New(t *testing.T) {
	registry := behaviour.NewRegistry(&behaviour.Deps{})
	_, err := registry.New(&queue.Item{ID: "1", Kind: queue.KindRecipe}, builder.Vitals{})
	assert.ErrorIs(t, err, behaviour.ErrUnknownKind)

	registry.Register(queue.KindRecipe, func(item *queue.Item, vitals builder.Vitals, deps *behaviour.Deps) (behaviour.Behaviour, error) {
		return &stub{Base: behaviour.Base{Item: item, Vitals: vitals, Deps: deps}}, nil
	})
	_, ok := registry.Lookup(queue.KindRecipe)
	assert.True(t, ok)
	created, err := registry.New(&queue.Item{ID: "1", Kind: queue.KindRecipe}, builder.Vitals{Name: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "bob", created.(*stub).Vitals.Name)
}

func TestRequestError(t *testing.T) {
	err := &behaviour.RequestError{ItemID: "7", Reason: "missing chroot"}
	assert.ErrorIs(t, err, behaviour.ErrRequest)
	assert.Equal(t, "build request 7: missing chroot", err.Error())
}

type stub struct {
	behaviour.Base
}

func (s *stub) Verify(context.Context) error { return nil }

func (s *stub) Dispatch(context.Context, agent.Agent) error { return nil }
