package clock

import "time"

// NowFunc returns current time. Override in tests for determinism.
var NowFunc = time.Now

// Now is a thin wrapper around NowFunc. Timestamps written to the registry
// (clean status changes, build start and finish) go through it.
func Now() time.Time { return NowFunc() }

// Fixed pins the clock to t and returns a function restoring the previous
// source.
func Fixed(t time.Time) (restore func()) {
	prev := NowFunc
	NowFunc = func() time.Time { return t }
	return func() { NowFunc = prev }
}
