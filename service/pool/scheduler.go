package pool

import (
	"sync"
	"time"
)

// Scheduler runs deferred work on a later tick.
type Scheduler interface {
	// Later arranges for fn to run after the current call returns.
	Later(fn func())
}

// TimerScheduler runs deferred work on a zero-delay timer.
type TimerScheduler struct{}

func (TimerScheduler) Later(fn func()) {
	time.AfterFunc(0, fn)
}

// ManualScheduler queues deferred work until Advance is called.
type ManualScheduler struct {
	mux     sync.Mutex
	pending []func()
}

func (m *ManualScheduler) Later(fn func()) {
	m.mux.Lock()
	m.pending = append(m.pending, fn)
	m.mux.Unlock()
}

// Advance runs the work queued before the call and returns how much ran.
// Work queued while advancing waits for the next tick.
func (m *ManualScheduler) Advance() int {
	m.mux.Lock()
	ready := m.pending
	m.pending = nil
	m.mux.Unlock()
	for _, fn := range ready {
		fn()
	}
	return len(ready)
}

// Pending returns the number of queued functions.
func (m *ManualScheduler) Pending() int {
	m.mux.Lock()
	defer m.mux.Unlock()
	return len(m.pending)
}
