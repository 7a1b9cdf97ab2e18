package coordinator_test

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/buildfarm/model/queue"
	"github.com/viant/buildfarm/model/status"
	"github.com/viant/buildfarm/service/agent"
	"github.com/viant/buildfarm/service/agent/agenttest"
	"github.com/viant/buildfarm/service/behaviour"
	"github.com/viant/buildfarm/service/coordinator"
	"github.com/viant/buildfarm/service/pool"
)

func TestService_UpdateBuild(t *testing.T) {
	testCases := []struct {
		description  string
		report       status.Report
		expectErr    []error
		expectStatus queue.Status
		expectFree   bool
		check        func(t *testing.T, item *queue.Item)
	}{
		{
			description:  "building forwards logtail",
			report:       status.Report{BuilderStatus: string(status.BuilderBuilding), BuildID: "100-1", Logtail: "compiling hello.c"},
			expectStatus: queue.StatusBuilding,
			check: func(t *testing.T, item *queue.Item) {
				assert.Equal(t, "compiling hello.c", item.Logtail)
			},
		},
		{
			description:  "aborting forwards logtail",
			report:       status.Report{BuilderStatus: string(status.BuilderAborting), BuildID: "100-1", Logtail: "killing"},
			expectStatus: queue.StatusBuilding,
		},
		{
			description: "waiting ok gathers results",
			report: status.Report{BuilderStatus: string(status.BuilderWaiting), BuildID: "100-1", BuildStatus: "BuildStatus.OK",
				FileMap: map[string]string{"hello_1.0_amd64.deb": "deb-sha"}},
			expectStatus: queue.StatusFullyBuilt,
			expectFree:   true,
			check: func(t *testing.T, item *queue.Item) {
				require.Contains(t, item.Results, "hello_1.0_amd64.deb")
				content, err := os.ReadFile(item.Results["hello_1.0_amd64.deb"])
				require.NoError(t, err)
				assert.Equal(t, "deb", string(content))
			},
		},
		{
			description:  "waiting depfail",
			report:       status.Report{BuilderStatus: string(status.BuilderWaiting), BuildStatus: "BuildStatus.DEPFAIL", Dependencies: "libfoo (>= 2)"},
			expectStatus: queue.StatusManualDepWait,
			expectFree:   true,
			check: func(t *testing.T, item *queue.Item) {
				assert.Equal(t, "libfoo (>= 2)", item.Dependencies)
			},
		},
		{
			description:  "waiting given back",
			report:       status.Report{BuilderStatus: string(status.BuilderWaiting), BuildStatus: "BuildStatus.GIVENBACK"},
			expectStatus: queue.StatusNeedsBuild,
			expectFree:   true,
		},
		{
			description:  "malformed build status",
			report:       status.Report{BuilderStatus: string(status.BuilderWaiting), BuildStatus: "garbage"},
			expectErr:    []error{coordinator.ErrBuildDaemon, status.ErrMalformedBuildStatus},
			expectStatus: queue.StatusBuilding,
		},
		{
			description:  "unknown build status",
			report:       status.Report{BuilderStatus: string(status.BuilderWaiting), BuildStatus: "BuildStatus.EXPLODED"},
			expectErr:    []error{behaviour.ErrUnknownBuildStatus},
			expectStatus: queue.StatusBuilding,
		},
		{
			description:  "idle while building",
			report:       status.Report{BuilderStatus: string(status.BuilderIdle)},
			expectErr:    []error{coordinator.ErrBuildDaemon},
			expectStatus: queue.StatusBuilding,
		},
		{
			description:  "unknown builder status",
			report:       status.Report{BuilderStatus: "BuilderStatus.ON_FIRE"},
			expectErr:    []error{coordinator.ErrBuildDaemon, status.ErrUnknownBuilderStatus},
			expectStatus: queue.StatusBuilding,
		},
		{
			description:  "foreign build id",
			report:       status.Report{BuilderStatus: string(status.BuilderBuilding), BuildID: "200-9"},
			expectErr:    []error{coordinator.ErrBuildDaemon},
			expectStatus: queue.StatusBuilding,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, bob(cleanBob))
			require.NoError(t, f.registry.SaveItem(ctx, helloItem()))
			require.NoError(t, f.registry.MarkBuilding(ctx, "1", "bob"))
			f.agent.Files["deb-sha"] = []byte("deb")

			report := testCase.report
			err := f.service.UpdateBuild(ctx, f.vitals(t, "bob"), f.agent, &report)
			if len(testCase.expectErr) > 0 {
				for _, expect := range testCase.expectErr {
					assert.ErrorIs(t, err, expect)
				}
				assert.True(t, coordinator.IsFatal(err))
			} else {
				assert.NoError(t, err)
			}
			item := f.item(t, "1")
			assert.Equal(t, testCase.expectStatus, item.Status)
			if testCase.expectFree {
				assert.Empty(t, f.vitals(t, "bob").CurrentItemID)
			} else {
				assert.Equal(t, "1", f.vitals(t, "bob").CurrentItemID)
			}
			if testCase.check != nil {
				testCase.check(t, item)
			}
		})
	}
}

func TestService_UpdateBuild_WithoutJob(t *testing.T) {
	f := newFixture(t, bob(cleanBob))
	err := f.service.UpdateBuild(context.Background(), f.vitals(t, "bob"), f.agent, &status.Report{BuilderStatus: string(status.BuilderBuilding)})
	assert.ErrorIs(t, err, coordinator.ErrBuildDaemon)
}

func TestExtractBuildStatus(t *testing.T) {
	actual, err := coordinator.ExtractBuildStatus(&status.Report{BuildStatus: "BuildStatus.OK"})
	assert.NoError(t, err)
	assert.Equal(t, "OK", actual)

	_, err = coordinator.ExtractBuildStatus(&status.Report{BuildStatus: "garbage"})
	assert.True(t, coordinator.IsFatal(err))
}

func TestService_UpdateBuild_GathersOverHTTP(t *testing.T) {
	deb := []byte(strings.Repeat("deb-payload ", 8192))
	changes := []byte("Format: 1.8\nSource: hello\n")
	buildlog := []byte("dpkg-buildpackage: info: binary-only upload\n")
	fileMap := map[string]string{
		"hello_1.0_amd64.deb":     "deb-sha",
		"hello_1.0_amd64.changes": "changes-sha",
		"buildlog":                "log-sha",
	}

	testCases := []struct {
		description  string
		truncate     []string
		expectStatus queue.Status
		expectFiles  map[string][]byte
	}{
		{
			description:  "all results downloaded",
			expectStatus: queue.StatusFullyBuilt,
			expectFiles:  map[string][]byte{"hello_1.0_amd64.deb": deb, "hello_1.0_amd64.changes": changes, "buildlog": buildlog},
		},
		{
			description:  "truncated result is never exposed",
			truncate:     []string{"deb-sha"},
			expectStatus: queue.StatusFailedUpload,
			expectFiles:  map[string][]byte{"hello_1.0_amd64.changes": changes, "buildlog": buildlog},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			ctx := context.Background()
			server := agenttest.New()
			defer server.Close()
			server.AddFile("deb-sha", deb)
			server.AddFile("changes-sha", changes)
			server.AddFile("log-sha", buildlog)
			for _, digest := range testCase.truncate {
				server.TruncateFile(digest)
			}
			server.SetStatus(status.Report{
				BuilderStatus: string(status.BuilderWaiting),
				BuildID:       "100-1",
				BuildStatus:   "BuildStatus.OK",
				FileMap:       fileMap,
			})
			p := pool.New(nil)
			defer p.Close()
			client := agent.New(server.URL, p)

			f := newFixture(t, bob(nil))
			require.NoError(t, f.registry.SaveItem(ctx, helloItem()))
			require.NoError(t, f.registry.MarkBuilding(ctx, "1", "bob"))
			report, err := client.Status(ctx)
			require.NoError(t, err)
			require.NoError(t, f.service.UpdateBuild(ctx, f.vitals(t, "bob"), client, report))

			item := f.item(t, "1")
			assert.Equal(t, testCase.expectStatus, item.Status)
			assert.Empty(t, f.vitals(t, "bob").CurrentItemID)
			if testCase.expectStatus == queue.StatusFullyBuilt {
				assert.Len(t, item.Results, len(fileMap))
			} else {
				assert.Empty(t, item.Results)
			}

			dir := filepath.Join(f.uploadRoot, "100-1")
			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			var names, expectNames []string
			for _, entry := range entries {
				names = append(names, entry.Name())
			}
			for name, content := range testCase.expectFiles {
				expectNames = append(expectNames, name)
				location := filepath.Join(dir, name)
				info, err := os.Stat(location)
				require.NoError(t, err)
				require.True(t, info.Mode().IsRegular(), "%s is not a regular file", location)
				actual, err := os.ReadFile(location)
				require.NoError(t, err)
				assert.Equal(t, content, actual, name)
			}
			sort.Strings(expectNames)
			assert.Equal(t, expectNames, names)
		})
	}
}
