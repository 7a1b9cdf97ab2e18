// Package memory provides an in-process messaging.Queue backed by a channel.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/viant/buildfarm/internal/idgen"
	"github.com/viant/buildfarm/service/messaging"
)

// Config for memory queue implementation
type Config struct {
	// Buffer is the channel capacity.
	Buffer int `json:"buffer" yaml:"buffer"`
	// DropWhenFull makes Publish fail with messaging.ErrQueueFull instead of blocking.
	DropWhenFull bool `json:"dropWhenFull" yaml:"dropWhenFull"`
	// MaxRetries bounds how often a nacked message is requeued.
	MaxRetries int `json:"maxRetries" yaml:"maxRetries"`
}

// DefaultConfig returns a standard configuration for memory queue
func DefaultConfig() Config {
	return Config{Buffer: 256, DropWhenFull: true, MaxRetries: 3}
}

// Message is a memory queue message.
type Message[T any] struct {
	id        string
	payload   T
	retries   int
	queue     *Queue[T]
	mux       sync.Mutex
	processed bool
}

func (m *Message[T]) ID() string { return m.id }

func (m *Message[T]) T() *T { return &m.payload }

// Retries returns how many times the message was nacked.
func (m *Message[T]) Retries() int { return m.retries }

func (m *Message[T]) settle() error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.processed {
		return fmt.Errorf("message %s already processed", m.id)
	}
	m.processed = true
	return nil
}

func (m *Message[T]) Ack() error {
	return m.settle()
}

// Nack requeues the message until MaxRetries is exceeded, then moves it to
// the dead letter list.
func (m *Message[T]) Nack(error) error {
	if err := m.settle(); err != nil {
		return err
	}
	retry := &Message[T]{id: m.id, payload: m.payload, retries: m.retries + 1, queue: m.queue}
	if retry.retries > m.queue.config.MaxRetries {
		m.queue.deadLetter(retry)
		return nil
	}
	select {
	case m.queue.messages <- retry:
	default:
		m.queue.deadLetter(retry)
	}
	return nil
}

// Queue implements an in-memory messaging.Queue
type Queue[T any] struct {
	messages chan *Message[T]
	config   Config
	dlqMux   sync.Mutex
	dlq      []*Message[T]
}

var _ messaging.Queue[any] = (*Queue[any])(nil)

// NewQueue creates a new in-memory queue
func NewQueue[T any](config Config) *Queue[T] {
	if config.Buffer <= 0 {
		config.Buffer = DefaultConfig().Buffer
	}
	return &Queue[T]{messages: make(chan *Message[T], config.Buffer), config: config}
}

func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	msg := &Message[T]{id: idgen.New(), payload: *t, queue: q}
	if q.config.DropWhenFull {
		select {
		case q.messages <- msg:
			return nil
		default:
			return messaging.ErrQueueFull
		}
	}
	select {
	case q.messages <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume blocks until a message arrives or ctx is done.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	select {
	case msg := <-q.messages:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Size returns the number of queued messages.
func (q *Queue[T]) Size() int {
	return len(q.messages)
}

func (q *Queue[T]) deadLetter(msg *Message[T]) {
	q.dlqMux.Lock()
	q.dlq = append(q.dlq, msg)
	q.dlqMux.Unlock()
}

// DLQSize returns the number of dead lettered messages.
func (q *Queue[T]) DLQSize() int {
	q.dlqMux.Lock()
	defer q.dlqMux.Unlock()
	return len(q.dlq)
}
