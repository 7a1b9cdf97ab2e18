package event_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/buildfarm/model/builder"
	"github.com/viant/buildfarm/service/event"
	"github.com/viant/buildfarm/service/messaging"
)

type collector struct {
	mux    sync.Mutex
	events []builder.Transition
}

func (c *collector) handle(_ context.Context, e *event.Event[builder.Transition]) error {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.events = append(c.events, e.Data)
	return nil
}

func (c *collector) len() int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return len(c.events)
}

func TestService_Transitions(t *testing.T) {
	testCases := []struct {
		description string
		config      func(t *testing.T) event.Config
	}{
		{
			description: "memory",
			config: func(t *testing.T) event.Config {
				return event.DefaultConfig()
			},
		},
		{
			description: "fs",
			config: func(t *testing.T) event.Config {
				cfg := event.DefaultConfig()
				cfg.Vendor = messaging.VendorFS
				cfg.URL = t.TempDir()
				cfg.PollIntervalMs = 5
				return cfg
			},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			ctx := context.Background()
			srv, err := event.New(testCase.config(t))
			require.NoError(t, err)
			defer srv.Close()

			publisher, err := event.PublisherOf[builder.Transition](ctx, srv)
			require.NoError(t, err)
			again, err := event.PublisherOf[builder.Transition](ctx, srv)
			require.NoError(t, err)
			assert.Same(t, publisher, again)

			sink := &collector{}
			require.NoError(t, event.SetListenerOf[builder.Transition](ctx, srv, sink.handle))

			for _, to := range []builder.CleanStatus{builder.CleanStatusCleaning, builder.CleanStatusClean} {
				transition := builder.Transition{Builder: "bob", From: builder.CleanStatusDirty, To: to}
				require.NoError(t, publisher.Publish(ctx, event.NewEvent(&event.Context{Builder: "bob", Service: "coordinator", Operation: "cleanBuilder"}, transition)))
			}
			assert.Eventually(t, func() bool { return sink.len() == 2 }, time.Second, 5*time.Millisecond)
			srv.Close()
			assert.Equal(t, builder.CleanStatusCleaning, sink.events[0].To)
			assert.Equal(t, builder.CleanStatusClean, sink.events[1].To)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		description string
		config      event.Config
		expectErr   bool
	}{
		{description: "default", config: event.DefaultConfig()},
		{description: "fs without url", config: event.Config{Vendor: messaging.VendorFS, PollIntervalMs: 1}, expectErr: true},
		{description: "unknown vendor", config: event.Config{Vendor: "kafka", PollIntervalMs: 1}, expectErr: true},
		{description: "no poll interval", config: event.Config{Vendor: messaging.VendorMemory}, expectErr: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			err := testCase.config.Validate()
			if testCase.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
