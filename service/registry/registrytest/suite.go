// Package registrytest holds behaviour every registry.Registry implementation
// must exhibit, run from each implementation's tests.
package registrytest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/buildfarm/model/builder"
	"github.com/viant/buildfarm/model/queue"
	"github.com/viant/buildfarm/service/registry"
)

// Run exercises a fresh registry returned by newRegistry for every sub-test.
func Run(t *testing.T, newRegistry func(t *testing.T) registry.Registry) {
	t.Run("builders", func(t *testing.T) { testBuilders(t, newRegistry(t)) })
	t.Run("candidates", func(t *testing.T) { testCandidates(t, newRegistry(t)) })
	t.Run("build lifecycle", func(t *testing.T) { testLifecycle(t, newRegistry(t)) })
}

// Bob returns a healthy virtualized amd64 builder.
func Bob() *builder.Builder {
	return &builder.Builder{
		Name:            "bob",
		URL:             "http://bob.buildd:8221/",
		Processor:       "amd64",
		Virtualized:     true,
		VMHost:          "bob-host.buildd",
		VMResetProtocol: builder.ResetProtocolSynchronous,
		BuilderOK:       true,
		CleanStatus:     builder.CleanStatusDirty,
	}
}

func testBuilders(t *testing.T, r registry.Registry) {
	ctx := context.Background()
	require.NoError(t, r.SaveBuilder(ctx, &builder.Builder{Name: "zed", URL: "http://zed:8221/", BuilderOK: true}))
	require.NoError(t, r.SaveBuilder(ctx, Bob()))

	builders, err := r.Builders(ctx)
	require.NoError(t, err)
	require.Len(t, builders, 2)
	assert.Equal(t, "bob", builders[0].Name)
	assert.Equal(t, builder.CleanStatusDirty, builders[1].CleanStatus)

	_, err = r.Builder(ctx, "nobody")
	assert.ErrorIs(t, err, registry.ErrBuilderNotFound)

	transition, err := r.SetCleanStatus(ctx, "bob", builder.CleanStatusCleaning)
	require.NoError(t, err)
	assert.Equal(t, builder.CleanStatusDirty, transition.From)
	assert.Equal(t, builder.CleanStatusCleaning, transition.To)

	bob, err := r.Builder(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, builder.CleanStatusCleaning, bob.CleanStatus)
	assert.Equal(t, builder.ResetProtocolSynchronous, bob.VMResetProtocol)
	assert.True(t, bob.Virtualized)

	count, err := r.RecordFailure(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	count, err = r.RecordFailure(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.NoError(t, r.ResetFailures(ctx, "bob"))

	require.NoError(t, r.FailBuilder(ctx, "bob", "agent unreachable"))
	bob, err = r.Builder(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, bob.BuilderOK)
	assert.Equal(t, "agent unreachable", bob.FailNotes)
	assert.Equal(t, 0, bob.FailureCount)

	_, err = r.SetCleanStatus(ctx, "nobody", builder.CleanStatusClean)
	assert.ErrorIs(t, err, registry.ErrBuilderNotFound)
}

func testCandidates(t *testing.T, r registry.Registry) {
	ctx := context.Background()
	require.NoError(t, r.SaveBuilder(ctx, Bob()))
	vitals := builder.NewVitals(Bob())

	item, err := r.NextCandidate(ctx, vitals)
	require.NoError(t, err)
	assert.Nil(t, item)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	items := []*queue.Item{
		{ID: "1", Kind: queue.KindBinaryPackage, BuildID: "101", Score: 10, Virtualized: true, Processor: "amd64", DateCreated: base},
		{ID: "2", Kind: queue.KindBinaryPackage, BuildID: "102", Score: 90, Virtualized: false, Processor: "amd64", DateCreated: base},
		{ID: "3", Kind: queue.KindRecipe, BuildID: "103", Score: 50, Virtualized: true, DateCreated: base.Add(time.Hour)},
		{ID: "4", Kind: queue.KindBinaryPackage, BuildID: "104", Score: 50, Virtualized: true, Processor: "amd64", DateCreated: base},
		{ID: "5", Kind: queue.KindBinaryPackage, BuildID: "105", Score: 99, Virtualized: true, Processor: "arm64", DateCreated: base},
	}
	for _, item := range items {
		require.NoError(t, r.SaveItem(ctx, item))
	}

	item, err = r.NextCandidate(ctx, vitals)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "4", item.ID)
	assert.Equal(t, queue.StatusNeedsBuild, item.Status)

	require.NoError(t, r.MarkBuilding(ctx, "4", "bob"))
	item, err = r.NextCandidate(ctx, vitals)
	require.NoError(t, err)
	assert.Equal(t, "3", item.ID)
	assert.ErrorIs(t, r.MarkBuilding(ctx, "4", "bob"), registry.ErrItemNotAvailable)
}

func testLifecycle(t *testing.T, r registry.Registry) {
	ctx := context.Background()
	require.NoError(t, r.SaveBuilder(ctx, Bob()))
	require.NoError(t, r.SaveItem(ctx, &queue.Item{
		ID: "7", Kind: queue.KindBinaryPackage, BuildID: "700", Virtualized: true,
		Chroot: queue.Chroot{Digest: "chroot-sha", URL: "http://librarian/chroot.tar.gz"},
		Files:  []queue.File{{Name: "hello.dsc", Digest: "dsc-sha", URL: "http://librarian/hello.dsc"}},
	}))

	require.NoError(t, r.MarkBuilding(ctx, "7", "bob"))
	bob, err := r.Builder(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "7", bob.CurrentItemID)

	item, err := r.Item(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusBuilding, item.Status)
	assert.Equal(t, "bob", item.Builder)
	assert.False(t, item.DateStarted.IsZero())
	require.Len(t, item.Files, 1)
	assert.Equal(t, "dsc-sha", item.Files[0].Digest)

	require.NoError(t, r.UpdateProgress(ctx, "7", queue.Progress{Logtail: "configuring"}))
	item, _ = r.Item(ctx, "7")
	assert.Equal(t, "configuring", item.Logtail)

	require.NoError(t, r.ResetItem(ctx, "7"))
	item, _ = r.Item(ctx, "7")
	assert.Equal(t, queue.StatusNeedsBuild, item.Status)
	assert.Empty(t, item.Builder)
	bob, _ = r.Builder(ctx, "bob")
	assert.Empty(t, bob.CurrentItemID)

	require.NoError(t, r.MarkBuilding(ctx, "7", "bob"))
	finished := time.Date(2024, 2, 2, 12, 0, 0, 0, time.UTC)
	require.NoError(t, r.CompleteBuild(ctx, "7", queue.Outcome{
		Status:       queue.StatusManualDepWait,
		Dependencies: "libfoo (>= 1.2)",
		FinishedAt:   finished,
	}))
	item, _ = r.Item(ctx, "7")
	assert.Equal(t, queue.StatusManualDepWait, item.Status)
	assert.Equal(t, "libfoo (>= 1.2)", item.Dependencies)
	assert.True(t, finished.Equal(item.DateFinished))
	bob, _ = r.Builder(ctx, "bob")
	assert.Empty(t, bob.CurrentItemID)

	_, err = r.Item(ctx, "missing")
	assert.ErrorIs(t, err, registry.ErrItemNotFound)
}
