// Package fs provides a durable messaging.Queue that stores each message as a
// JSON document through afs. Messages move between the pending, processing,
// completed and dlq folders as they are consumed and settled.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/buildfarm/internal/clock"
	"github.com/viant/buildfarm/internal/idgen"
	"github.com/viant/buildfarm/service/messaging"
)

const (
	pending    = "pending"
	processing = "processing"
	completed  = "completed"
	dlq        = "dlq"
)

// Config holds configuration for filesystem queue
type Config struct {
	// URL is the base location for queue folders.
	URL string `json:"url" yaml:"url"`
	// MaxRetries bounds how often a nacked message is returned to pending.
	MaxRetries int `json:"maxRetries" yaml:"maxRetries"`
	// KeepCompleted retains acknowledged messages under completed.
	KeepCompleted bool `json:"keepCompleted" yaml:"keepCompleted"`
}

// DefaultConfig returns a default queue configuration
func DefaultConfig() Config {
	return Config{URL: "/tmp/buildfarm/events", MaxRetries: 3, KeepCompleted: true}
}

// Message is a persisted queue message.
type Message[T any] struct {
	Id        string    `json:"id"`
	Data      T         `json:"data"`
	Error     string    `json:"error,omitempty"`
	Retries   int       `json:"retries"`
	CreatedAt time.Time `json:"createdAt"`

	name      string
	queue     *Queue[T]
	mux       sync.Mutex
	processed bool
}

func (m *Message[T]) ID() string { return m.Id }

func (m *Message[T]) T() *T { return &m.Data }

func (m *Message[T]) settle() error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.processed {
		return fmt.Errorf("message %s already processed", m.Id)
	}
	m.processed = true
	return nil
}

func (m *Message[T]) Ack() error {
	if err := m.settle(); err != nil {
		return err
	}
	return m.queue.ack(context.Background(), m)
}

func (m *Message[T]) Nack(err error) error {
	if e := m.settle(); e != nil {
		return e
	}
	if err != nil {
		m.Error = err.Error()
	}
	m.Retries++
	return m.queue.nack(context.Background(), m)
}

// Queue implements a filesystem-based messaging.Queue
type Queue[T any] struct {
	fs     afs.Service
	config Config
	mux    sync.Mutex
}

var _ messaging.Queue[any] = (*Queue[any])(nil)

// NewQueue creates the queue folders under config.URL.
func NewQueue[T any](ctx context.Context, fs afs.Service, config Config) (*Queue[T], error) {
	if config.URL == "" {
		return nil, fmt.Errorf("fs queue: url was empty")
	}
	q := &Queue[T]{fs: fs, config: config}
	for _, folder := range []string{pending, processing, completed, dlq} {
		URL := q.folder(folder)
		if ok, _ := fs.Exists(ctx, URL); ok {
			continue
		}
		if err := fs.Create(ctx, URL, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("fs queue: failed to create %s: %w", URL, err)
		}
	}
	return q, nil
}

func (q *Queue[T]) folder(name string) string {
	return path.Join(q.config.URL, name)
}

// Publish writes the message to pending. File names sort in publish order.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	now := clock.Now()
	msg := &Message[T]{Id: idgen.New(), Data: *t, CreatedAt: now}
	msg.name = fmt.Sprintf("%020d-%s.json", now.UnixNano(), msg.Id)
	return q.write(ctx, path.Join(q.folder(pending), msg.name), msg)
}

// Consume claims the oldest pending message, or returns nil when none is
// pending.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	q.mux.Lock()
	defer q.mux.Unlock()
	names, err := q.names(ctx, pending)
	if err != nil || len(names) == 0 {
		return nil, err
	}
	name := names[0]
	source := path.Join(q.folder(pending), name)
	data, err := q.fs.DownloadWithURL(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("fs queue: failed to read %s: %w", source, err)
	}
	msg := &Message[T]{}
	if err = json.Unmarshal(data, msg); err != nil {
		_ = q.fs.Move(ctx, source, path.Join(q.folder(dlq), name))
		return nil, fmt.Errorf("fs queue: invalid message %s: %w", name, err)
	}
	msg.name = name
	msg.queue = q
	if err = q.fs.Move(ctx, source, path.Join(q.folder(processing), name)); err != nil {
		return nil, fmt.Errorf("fs queue: failed to claim %s: %w", name, err)
	}
	return msg, nil
}

// Pending returns the number of messages waiting to be consumed.
func (q *Queue[T]) Pending(ctx context.Context) (int, error) {
	names, err := q.names(ctx, pending)
	return len(names), err
}

// DLQSize returns the number of dead lettered messages.
func (q *Queue[T]) DLQSize(ctx context.Context) (int, error) {
	names, err := q.names(ctx, dlq)
	return len(names), err
}

func (q *Queue[T]) names(ctx context.Context, folder string) ([]string, error) {
	objects, err := q.fs.List(ctx, q.folder(folder))
	if err != nil {
		return nil, fmt.Errorf("fs queue: failed to list %s: %w", folder, err)
	}
	var ret []string
	for _, object := range objects {
		if !object.IsDir() && strings.HasSuffix(object.Name(), ".json") {
			ret = append(ret, object.Name())
		}
	}
	sort.Strings(ret)
	return ret, nil
}

func (q *Queue[T]) ack(ctx context.Context, m *Message[T]) error {
	q.mux.Lock()
	defer q.mux.Unlock()
	source := path.Join(q.folder(processing), m.name)
	if !q.config.KeepCompleted {
		return q.fs.Delete(ctx, source)
	}
	return q.fs.Move(ctx, source, path.Join(q.folder(completed), m.name))
}

func (q *Queue[T]) nack(ctx context.Context, m *Message[T]) error {
	q.mux.Lock()
	defer q.mux.Unlock()
	dest := pending
	if m.Retries > q.config.MaxRetries {
		dest = dlq
	}
	if err := q.write(ctx, path.Join(q.folder(dest), m.name), m); err != nil {
		return err
	}
	return q.fs.Delete(ctx, path.Join(q.folder(processing), m.name))
}

func (q *Queue[T]) write(ctx context.Context, URL string, msg *Message[T]) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("fs queue: failed to marshal message: %w", err)
	}
	if err = q.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("fs queue: failed to write %s: %w", URL, err)
	}
	return nil
}
