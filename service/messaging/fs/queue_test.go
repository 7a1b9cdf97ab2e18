package fs

import (
	"context"
	"errors"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/buildfarm/internal/clock"
)

type transition struct {
	Builder string `json:"builder"`
	To      string `json:"to"`
}

func newQueue(t *testing.T, config Config) *Queue[transition] {
	t.Helper()
	config.URL = t.TempDir()
	queue, err := NewQueue[transition](context.Background(), afs.New(), config)
	require.NoError(t, err)
	return queue
}

func TestQueue_PublishConsume(t *testing.T) {
	ctx := context.Background()
	queue := newQueue(t, Config{MaxRetries: 1, KeepCompleted: true})
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, to := range []string{"CLEANING", "CLEAN", "DIRTY"} {
		restore := clock.Fixed(base.Add(time.Duration(i) * time.Second))
		require.NoError(t, queue.Publish(ctx, &transition{Builder: "bob", To: to}))
		restore()
	}
	count, err := queue.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	var actual []string
	for {
		msg, err := queue.Consume(ctx)
		require.NoError(t, err)
		if msg == nil {
			break
		}
		actual = append(actual, msg.T().To)
		require.NoError(t, msg.Ack())
		assert.Error(t, msg.Ack())
	}
	assert.Equal(t, []string{"CLEANING", "CLEAN", "DIRTY"}, actual)

	completedNames, err := queue.names(ctx, completed)
	require.NoError(t, err)
	assert.Len(t, completedNames, 3)
}

func TestQueue_Nack(t *testing.T) {
	testCases := []struct {
		description   string
		nacks         int
		expectPending int
		expectDLQ     int
	}{
		{description: "retried", nacks: 1, expectPending: 1, expectDLQ: 0},
		{description: "dead lettered", nacks: 2, expectPending: 0, expectDLQ: 1},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			ctx := context.Background()
			queue := newQueue(t, Config{MaxRetries: 1})
			require.NoError(t, queue.Publish(ctx, &transition{Builder: "bob", To: "CLEAN"}))
			for i := 0; i < testCase.nacks; i++ {
				msg, err := queue.Consume(ctx)
				require.NoError(t, err)
				require.NotNil(t, msg)
				require.NoError(t, msg.Nack(errors.New("listener failed")))
			}
			pendingCount, err := queue.Pending(ctx)
			require.NoError(t, err)
			assert.Equal(t, testCase.expectPending, pendingCount)
			dlqCount, err := queue.DLQSize(ctx)
			require.NoError(t, err)
			assert.Equal(t, testCase.expectDLQ, dlqCount)
		})
	}
}

func TestQueue_AckWithoutKeep(t *testing.T) {
	ctx := context.Background()
	queue := newQueue(t, Config{})
	require.NoError(t, queue.Publish(ctx, &transition{Builder: "bob"}))
	msg, err := queue.Consume(ctx)
	require.NoError(t, err)
	require.NoError(t, msg.Ack())

	fs := afs.New()
	objects, err := fs.List(ctx, path.Join(queue.config.URL, completed))
	require.NoError(t, err)
	for _, object := range objects {
		assert.True(t, object.IsDir())
	}
}

func TestNewQueue_EmptyURL(t *testing.T) {
	_, err := NewQueue[transition](context.Background(), afs.New(), Config{})
	assert.Error(t, err)
}
