package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/viant/buildfarm/internal/clock"
	"github.com/viant/buildfarm/internal/logging"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Acquire once the pool is closed.
var ErrClosed = errors.New("pool: closed")

// Pool is a connection pool bounded by a counting semaphore.
type Pool struct {
	config    *Config
	slots     *semaphore.Weighted
	scheduler Scheduler
	logger    *slog.Logger

	mux    sync.Mutex
	idle   map[string][]*Conn
	inUse  int
	nextID uint64
	closed bool
}

// Stats is a snapshot of pool usage.
type Stats struct {
	InUse int
	Idle  map[string]int
}

// Option configures the pool.
type Option func(*Pool)

// WithScheduler overrides the tick scheduler used by Release.
func WithScheduler(scheduler Scheduler) Option {
	return func(p *Pool) { p.scheduler = scheduler }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// New creates a pool, using DefaultConfig when config is nil.
func New(config *Config, opts ...Option) *Pool {
	if config == nil {
		config = DefaultConfig()
	}
	ret := &Pool{
		config:    config,
		slots:     semaphore.NewWeighted(int64(config.MaxConnections)),
		scheduler: TimerScheduler{},
		logger:    logging.Discard(),
		idle:      map[string][]*Conn{},
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Acquire blocks until a slot is free, then returns the most recently idle
// connection for key or a new one.
func (p *Pool) Acquire(ctx context.Context, key string) (*Conn, error) {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.closed {
		p.slots.Release(1)
		return nil, ErrClosed
	}
	conn := p.popIdle(key)
	if conn == nil {
		p.nextID++
		conn = newConn(p.nextID, key, p.config.IdleTimeout())
		p.logger.Debug("pool connection created", "key", key, "conn", conn.id)
	}
	conn.released.Store(false)
	p.inUse++
	return conn, nil
}

func (p *Pool) popIdle(key string) *Conn {
	conns := p.idle[key]
	timeout := p.config.IdleTimeout()
	now := clock.Now()
	for len(conns) > 0 {
		conn := conns[len(conns)-1]
		conns = conns[:len(conns)-1]
		if timeout > 0 && now.Sub(conn.idleSince) > timeout {
			conn.close()
			continue
		}
		p.setIdle(key, conns)
		return conn
	}
	p.setIdle(key, conns)
	return nil
}

func (p *Pool) setIdle(key string, conns []*Conn) {
	if len(conns) == 0 {
		delete(p.idle, key)
		return
	}
	p.idle[key] = conns
}

// Release hands conn back. The connection and its slot become available on
// the next scheduler tick. Releasing a connection twice is a no-op.
func (p *Pool) Release(conn *Conn) error {
	if conn == nil {
		return fmt.Errorf("pool: release nil connection")
	}
	if !conn.released.CompareAndSwap(false, true) {
		return nil
	}
	p.scheduler.Later(func() {
		p.mux.Lock()
		p.inUse--
		if p.closed || len(p.idle[conn.key]) >= p.config.MaxIdlePerHost {
			conn.close()
		} else {
			conn.idleSince = clock.Now()
			p.idle[conn.key] = append(p.idle[conn.key], conn)
		}
		p.mux.Unlock()
		p.slots.Release(1)
	})
	return nil
}

// Stats returns current usage.
func (p *Pool) Stats() Stats {
	p.mux.Lock()
	defer p.mux.Unlock()
	ret := Stats{InUse: p.inUse, Idle: make(map[string]int, len(p.idle))}
	for key, conns := range p.idle {
		ret.Idle[key] = len(conns)
	}
	return ret
}

// Close closes idle connections; connections still leased are closed on release.
func (p *Pool) Close() error {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for key, conns := range p.idle {
		for _, conn := range conns {
			conn.close()
		}
		delete(p.idle, key)
	}
	return nil
}
