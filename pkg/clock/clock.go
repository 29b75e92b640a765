// Package clock abstracts time so pkg/sessionloop, pkg/feedback, and
// pkg/bridge can be driven deterministically in tests.
package clock

import "time"

// Ticker is the subset of time.Ticker that callers need; it lets
// FakeTicker stand in for the real thing in tests.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock is the seam between wall-clock time and the scheduler/latch/
// backoff logic that needs to reason about it.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
}

// Real is the production Clock backed by the time package.
type Real struct{}

// New returns the real, wall-clock-backed Clock.
func New() Clock { return Real{} }

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// After returns time.After(d).
func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }

// NewTicker wraps time.NewTicker.
func (Real) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }
