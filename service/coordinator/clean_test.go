package coordinator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/buildfarm/model/builder"
	"github.com/viant/buildfarm/model/status"
	"github.com/viant/buildfarm/service/agent"
	"github.com/viant/buildfarm/service/agent/agenttest"
	"github.com/viant/buildfarm/service/coordinator"
)

func TestService_CleanBuilder_Virtualized(t *testing.T) {
	testCases := []struct {
		description   string
		protocol      builder.ResetProtocol
		cleanStatus   builder.CleanStatus
		resumeErr     error
		expectClean   bool
		expectErr     error
		expectJournal []string
		expectStatus  builder.CleanStatus
	}{
		{
			description:   "synchronous dirty commits cleaning before resume then pings",
			protocol:      builder.ResetProtocolSynchronous,
			cleanStatus:   builder.CleanStatusDirty,
			expectClean:   true,
			expectJournal: []string{"commit:CLEANING", agenttest.MethodResume, agent.MethodEcho},
			expectStatus:  builder.CleanStatusCleaning,
		},
		{
			description:   "synchronous resumes whatever the clean status",
			protocol:      builder.ResetProtocolSynchronous,
			cleanStatus:   builder.CleanStatusCleaning,
			expectClean:   true,
			expectJournal: []string{"commit:CLEANING", agenttest.MethodResume, agent.MethodEcho},
			expectStatus:  builder.CleanStatusCleaning,
		},
		{
			description:   "synchronous resume failure skips ping",
			protocol:      builder.ResetProtocolSynchronous,
			cleanStatus:   builder.CleanStatusDirty,
			resumeErr:     &agent.ResumeError{Command: "reset-vm bob", Stderr: "no such vm", Status: 1},
			expectErr:     coordinator.ErrCannotResumeHost,
			expectJournal: []string{"commit:CLEANING", agenttest.MethodResume},
			expectStatus:  builder.CleanStatusCleaning,
		},
		{
			description:   "asynchronous dirty resumes then commits cleaning",
			protocol:      builder.ResetProtocolAsynchronous,
			cleanStatus:   builder.CleanStatusDirty,
			expectJournal: []string{agenttest.MethodResume, "commit:CLEANING"},
			expectStatus:  builder.CleanStatusCleaning,
		},
		{
			description:  "asynchronous cleaning waits",
			protocol:     builder.ResetProtocolAsynchronous,
			cleanStatus:  builder.CleanStatusCleaning,
			expectStatus: builder.CleanStatusCleaning,
		},
		{
			description:   "asynchronous resume failure stays dirty",
			protocol:      builder.ResetProtocolAsynchronous,
			cleanStatus:   builder.CleanStatusDirty,
			resumeErr:     &agent.TimeoutError{Method: "resume", After: 1},
			expectErr:     agent.ErrTimeout,
			expectJournal: []string{agenttest.MethodResume},
			expectStatus:  builder.CleanStatusDirty,
		},
		{
			description:  "no reset protocol",
			protocol:     builder.ResetProtocolNone,
			cleanStatus:  builder.CleanStatusDirty,
			expectErr:    coordinator.ErrInvalidResetProtocol,
			expectStatus: builder.CleanStatusDirty,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			f := newFixture(t, bob(func(b *builder.Builder) {
				b.VMResetProtocol = testCase.protocol
				b.CleanStatus = testCase.cleanStatus
			}))
			if testCase.resumeErr != nil {
				f.agent.Errors[agenttest.MethodResume] = testCase.resumeErr
			}
			clean, err := f.service.CleanBuilder(context.Background(), f.vitals(t, "bob"), f.agent)
			if testCase.expectErr != nil {
				assert.ErrorIs(t, err, testCase.expectErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, testCase.expectClean, clean)
			assert.Equal(t, testCase.expectJournal, f.journal.list())
			assert.Equal(t, testCase.expectStatus, f.vitals(t, "bob").CleanStatus)
		})
	}
}

func TestService_CleanBuilder_AsynchronousResumesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, bob(func(b *builder.Builder) { b.VMResetProtocol = builder.ResetProtocolAsynchronous }))

	clean, err := f.service.CleanBuilder(ctx, f.vitals(t, "bob"), f.agent)
	require.NoError(t, err)
	assert.False(t, clean)
	assert.Equal(t, 1, f.agent.Count(agenttest.MethodResume))
	assert.Equal(t, builder.CleanStatusCleaning, f.vitals(t, "bob").CleanStatus)

	clean, err = f.service.CleanBuilder(ctx, f.vitals(t, "bob"), f.agent)
	require.NoError(t, err)
	assert.False(t, clean)
	assert.Equal(t, 1, f.agent.Count(agenttest.MethodResume))
}

func TestService_CleanBuilder_Physical(t *testing.T) {
	testCases := []struct {
		description   string
		builderStatus string
		expectClean   bool
		expectMethods []string
		expectErr     error
	}{
		{description: "idle", builderStatus: string(status.BuilderIdle), expectClean: true, expectMethods: []string{agent.MethodStatus}},
		{description: "building is aborted", builderStatus: string(status.BuilderBuilding), expectMethods: []string{agent.MethodStatus, agent.MethodAbort}},
		{description: "aborting waits", builderStatus: string(status.BuilderAborting), expectMethods: []string{agent.MethodStatus}},
		{description: "waiting is cleaned", builderStatus: string(status.BuilderWaiting), expectClean: true, expectMethods: []string{agent.MethodStatus, agent.MethodClean}},
		{description: "unknown status", builderStatus: "BuilderStatus.SLEEPING", expectMethods: []string{agent.MethodStatus}, expectErr: coordinator.ErrBuildDaemon},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			f := newFixture(t, bob(func(b *builder.Builder) {
				b.Virtualized = false
				b.VMHost = ""
				b.VMResetProtocol = builder.ResetProtocolNone
			}))
			f.agent.Report = status.Report{BuilderStatus: testCase.builderStatus}
			clean, err := f.service.CleanBuilder(context.Background(), f.vitals(t, "bob"), f.agent)
			if testCase.expectErr != nil {
				assert.ErrorIs(t, err, testCase.expectErr)
				assert.True(t, coordinator.IsFatal(err))
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, testCase.expectClean, clean)
			assert.Equal(t, testCase.expectMethods, f.agent.Methods())
			assert.Equal(t, 0, f.agent.Count(agenttest.MethodResume))
			assert.Equal(t, 1, f.agent.Count(agent.MethodStatus))
		})
	}
}

func TestService_CleanBuilder_StatusTimeout(t *testing.T) {
	f := newFixture(t, bob(func(b *builder.Builder) { b.Virtualized = false }))
	f.agent.Errors[agent.MethodStatus] = &agent.TimeoutError{Method: agent.MethodStatus, After: 1}
	clean, err := f.service.CleanBuilder(context.Background(), f.vitals(t, "bob"), f.agent)
	assert.False(t, clean)
	assert.True(t, coordinator.IsInfrastructure(err))
	assert.False(t, coordinator.IsFatal(err))
}
