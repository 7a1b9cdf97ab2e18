package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/buildfarm/service/messaging"
)

type transition struct {
	Builder string
	To      string
}

func TestQueue_PublishConsume(t *testing.T) {
	ctx := context.Background()
	queue := NewQueue[transition](DefaultConfig())

	require.NoError(t, queue.Publish(ctx, &transition{Builder: "bob", To: "CLEANING"}))
	require.NoError(t, queue.Publish(ctx, &transition{Builder: "bob", To: "CLEAN"}))
	assert.Equal(t, 2, queue.Size())

	first, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "CLEANING", first.T().To)
	assert.NotEmpty(t, first.ID())
	assert.NoError(t, first.Ack())
	assert.Error(t, first.Ack())

	second, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "CLEAN", second.T().To)

	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = queue.Consume(timeoutCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_DropWhenFull(t *testing.T) {
	testCases := []struct {
		description string
		drop        bool
		expectErr   error
	}{
		{description: "drop", drop: true, expectErr: messaging.ErrQueueFull},
		{description: "block", drop: false, expectErr: context.DeadlineExceeded},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			queue := NewQueue[transition](Config{Buffer: 1, DropWhenFull: testCase.drop})
			require.NoError(t, queue.Publish(context.Background(), &transition{Builder: "bob"}))
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()
			assert.ErrorIs(t, queue.Publish(ctx, &transition{Builder: "alice"}), testCase.expectErr)
		})
	}
}

func TestQueue_NackDeadLetter(t *testing.T) {
	ctx := context.Background()
	queue := NewQueue[transition](Config{Buffer: 4, MaxRetries: 1})
	require.NoError(t, queue.Publish(ctx, &transition{Builder: "bob"}))

	msg, err := queue.Consume(ctx)
	require.NoError(t, err)
	require.NoError(t, msg.Nack(errors.New("handler failed")))
	assert.Equal(t, 1, queue.Size())

	msg, err = queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, msg.(*Message[transition]).Retries())
	require.NoError(t, msg.Nack(errors.New("handler failed")))
	assert.Equal(t, 0, queue.Size())
	assert.Equal(t, 1, queue.DLQSize())
}
