package event

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"reflect"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/buildfarm/internal/logging"
	"github.com/viant/buildfarm/service/messaging"
	"github.com/viant/buildfarm/service/messaging/fs"
	"github.com/viant/buildfarm/service/messaging/memory"
)

// Config configures the event service.
type Config struct {
	Vendor messaging.Vendor `json:"vendor" yaml:"vendor"`
	// URL is the base location of fs queues.
	URL string `json:"url" yaml:"url"`
	// Buffer is the memory queue capacity.
	Buffer int `json:"buffer" yaml:"buffer"`
	// PollIntervalMs is how long a listener waits after draining a queue.
	PollIntervalMs int `json:"pollIntervalMs" yaml:"pollIntervalMs"`
}

// DefaultConfig returns memory queues that drop events when full.
func DefaultConfig() Config {
	return Config{Vendor: messaging.VendorMemory, Buffer: memory.DefaultConfig().Buffer, PollIntervalMs: 250}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Vendor {
	case messaging.VendorMemory:
	case messaging.VendorFS:
		if c.URL == "" {
			return fmt.Errorf("events: url is required for %s vendor", c.Vendor)
		}
	default:
		return fmt.Errorf("events: unsupported queue vendor: %s", c.Vendor)
	}
	if c.PollIntervalMs <= 0 {
		return fmt.Errorf("events: pollIntervalMs must be positive")
	}
	return nil
}

// Service creates one queue, publisher and optional listener per event type.
type Service struct {
	config     Config
	publishers map[reflect.Type]any
	listeners  map[reflect.Type]stopper
	mux        sync.RWMutex
	fsConfig   func(name string) fs.Config
	memConfig  func(name string) memory.Config
	logger     *slog.Logger
}

type stopper interface{ Stop() }

func New(config Config, opts ...Option) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	ret := &Service{
		config:     config,
		publishers: make(map[reflect.Type]any),
		listeners:  make(map[reflect.Type]stopper),
		logger:     logging.Discard(),
	}
	ret.fsConfig = func(name string) fs.Config {
		cfg := fs.DefaultConfig()
		cfg.URL = path.Join(config.URL, name)
		return cfg
	}
	ret.memConfig = func(name string) memory.Config {
		cfg := memory.DefaultConfig()
		cfg.Buffer = config.Buffer
		return cfg
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret, nil
}

func QueueOf[T any](ctx context.Context, s *Service, name string) (messaging.Queue[T], error) {
	switch s.config.Vendor {
	case messaging.VendorFS:
		return fs.NewQueue[T](ctx, afs.New(), s.fsConfig(name))
	case messaging.VendorMemory:
		return memory.NewQueue[T](s.memConfig(name)), nil
	}
	return nil, fmt.Errorf("unsupported queue vendor: %s", s.config.Vendor)
}

func keyOf[T any]() reflect.Type {
	rType := reflect.TypeOf((*T)(nil)).Elem()
	for rType.Kind() == reflect.Ptr {
		rType = rType.Elem()
	}
	return rType
}

// PublisherOf returns a publisher for the provided type
func PublisherOf[T any](ctx context.Context, s *Service) (*Publisher[T], error) {
	key := keyOf[T]()
	s.mux.Lock()
	defer s.mux.Unlock()
	if ret, ok := s.publishers[key]; ok {
		return ret.(*Publisher[T]), nil
	}
	queue, err := QueueOf[Event[T]](ctx, s, key.String())
	if err != nil {
		return nil, err
	}
	publisher := NewPublisher[T](queue)
	s.publishers[key] = publisher
	return publisher, nil
}

// SetListenerOf replaces the listener consuming events of type T.
func SetListenerOf[T any](ctx context.Context, s *Service, handler Handler[T]) error {
	publisher, err := PublisherOf[T](ctx, s)
	if err != nil {
		return err
	}
	key := keyOf[T]()
	listener := NewListener[T](publisher, handler, time.Duration(s.config.PollIntervalMs)*time.Millisecond, s.logger)
	s.mux.Lock()
	prev := s.listeners[key]
	s.listeners[key] = listener
	s.mux.Unlock()
	if prev != nil {
		prev.Stop()
	}
	listener.Start(ctx)
	return nil
}

// Close stops all listeners.
func (s *Service) Close() {
	s.mux.Lock()
	listeners := s.listeners
	s.listeners = make(map[reflect.Type]stopper)
	s.mux.Unlock()
	for _, listener := range listeners {
		listener.Stop()
	}
}
