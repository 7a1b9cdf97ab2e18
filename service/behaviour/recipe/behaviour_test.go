package recipe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/buildfarm/model/builder"
	"github.com/viant/buildfarm/model/queue"
	"github.com/viant/buildfarm/service/agent"
	"github.com/viant/buildfarm/service/agent/agenttest"
	"github.com/viant/buildfarm/service/behaviour"
)

func newItem() *queue.Item {
	return &queue.Item{
		ID: "9", Kind: queue.KindRecipe, BuildID: "900", Virtualized: true, Suite: "noble",
		Chroot:  queue.Chroot{Digest: "chroot-sha", URL: "http://librarian/chroot.tar.gz"},
		Archive: queue.Archive{Name: "ppa", Purpose: "PPA", Component: "main"},
		Recipe:  &queue.Recipe{Text: "# bzr-builder format 0.3 deb-version 1.0", DistroSeries: "noble", AuthorName: "Joe", AuthorEmail: "joe@example.com"},
	}
}

func TestBehaviour_Verify(t *testing.T) {
	testCases := []struct {
		description string
		mutate      func(item *queue.Item)
		expectErr   bool
	}{
		{description: "valid", mutate: func(*queue.Item) {}},
		{description: "no recipe", mutate: func(item *queue.Item) { item.Recipe = nil }, expectErr: true},
		{description: "empty text", mutate: func(item *queue.Item) { item.Recipe.Text = "" }, expectErr: true},
		{description: "no distro series", mutate: func(item *queue.Item) { item.Recipe.DistroSeries = "" }, expectErr: true},
		{description: "no chroot", mutate: func(item *queue.Item) { item.Chroot.Digest = "" }, expectErr: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			item := newItem()
			testCase.mutate(item)
			b, err := New(item, builder.Vitals{Name: "bob", Virtualized: true}, &behaviour.Deps{})
			require.NoError(t, err)
			err = b.Verify(context.Background())
			if testCase.expectErr {
				assert.ErrorIs(t, err, behaviour.ErrRequest)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBehaviour_Dispatch(t *testing.T) {
	b, err := New(newItem(), builder.Vitals{Name: "bob", Virtualized: true}, &behaviour.Deps{})
	require.NoError(t, err)
	fake := agenttest.NewFake("http://bob:8221")

	require.NoError(t, b.Dispatch(context.Background(), fake))
	assert.Equal(t, []string{agent.MethodEnsurePresent, agent.MethodBuild}, fake.Methods())
	calls := fake.Calls()
	assert.Equal(t, "http://librarian/chroot.tar.gz", calls[0].Args[1])
	build := calls[1]
	assert.Equal(t, "900-9", build.Args[0])
	assert.Equal(t, BuilderType, build.Args[1])
	assert.Equal(t, map[string]string{}, build.Args[3])
	args := build.Args[4].(map[string]any)
	assert.Equal(t, "noble", args["distroseries_name"])
	assert.Equal(t, "Joe", args["author_name"])
	assert.Equal(t, "# bzr-builder format 0.3 deb-version 1.0", args["recipe_text"])
}

func TestRegister(t *testing.T) {
	registry := behaviour.NewRegistry(&behaviour.Deps{})
	Register(registry)
	created, err := registry.New(newItem(), builder.Vitals{Name: "bob", Virtualized: true})
	require.NoError(t, err)
	assert.IsType(t, &Behaviour{}, created)
}
