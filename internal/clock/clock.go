// Package clock abstracts delayed callback scheduling so timer-driven logic
// can be tested without real time.
package clock

import (
	"sync"
	"time"
)

// CancelFunc cancels a scheduled callback. Idempotent: cancelling twice or
// cancelling after the callback ran is a no-op.
type CancelFunc func()

// Scheduler invokes a callback after a delay and returns a cancel handle.
type Scheduler interface {
	After(d time.Duration, fn func()) CancelFunc
}

// Real schedules callbacks on the wall clock.
type Real struct{}

// New returns a wall clock scheduler.
func New() *Real {
	return &Real{}
}

// After schedules fn to run once after d.
func (r *Real) After(d time.Duration, fn func()) CancelFunc {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Fake is a manually driven scheduler for tests. Callbacks never fire on
// their own; tests call Fire or Advance.
type Fake struct {
	mu      sync.Mutex
	nextID  int
	pending map[int]fakeTimer
}

type fakeTimer struct {
	delay time.Duration
	fn    func()
}

// NewFake returns a manually driven scheduler.
func NewFake() *Fake {
	return &Fake{pending: make(map[int]fakeTimer)}
}

// After records fn without starting any real timer.
func (f *Fake) After(d time.Duration, fn func()) CancelFunc {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.pending[id] = fakeTimer{delay: d, fn: fn}
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.pending, id)
		f.mu.Unlock()
	}
}

// Pending returns the number of scheduled callbacks that were not cancelled.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Fire runs and removes all pending callbacks, oldest first.
func (f *Fake) Fire() {
	f.mu.Lock()
	fns := make([]func(), 0, len(f.pending))
	for id := 0; id < f.nextID; id++ {
		if t, ok := f.pending[id]; ok {
			fns = append(fns, t.fn)
			delete(f.pending, id)
		}
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
