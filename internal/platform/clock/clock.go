// Package clock abstracts time and timer scheduling so the escalation
// controller can be driven by a fake clock in tests. Timers fire
// asynchronously; cancellation is best-effort and callers must guard against
// late fires.
package clock

import (
	"sync"
	"time"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop cancels the timer if it has not fired yet. It reports whether
	// the call prevented the callback from running.
	Stop() bool
}

// Scheduler schedules one-shot callbacks.
type Scheduler interface {
	Clock
	// AfterFunc runs fn on its own goroutine after d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
}

// System is the real implementation backed by the time package.
type System struct{}

func NewSystem() *System { return &System{} }

func (*System) Now() time.Time { return time.Now().UTC() }

func (*System) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Fake is a manually advanced scheduler for tests. Callbacks run
// synchronously inside Advance, in firing order.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	fake    *Fake
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.fake.mu.Lock()
	defer t.fake.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// NewFake returns a Fake clock starting at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{fake: f, at: f.now.Add(d), fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the fake clock forward and fires every due timer in order.
// A callback may schedule further timers; those fire too if they fall within
// the advanced window.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		t := f.nextDue(target)
		if t == nil {
			break
		}
		t.fn()
	}

	f.mu.Lock()
	f.now = target
	f.mu.Unlock()
}

// nextDue pops the earliest unfired, unstopped timer due at or before target,
// advancing now to its deadline.
func (f *Fake) nextDue(target time.Time) *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()

	var next *fakeTimer
	for _, t := range f.timers {
		if t.fired || t.stopped || t.at.After(target) {
			continue
		}
		if next == nil || t.at.Before(next.at) {
			next = t
		}
	}
	if next == nil {
		return nil
	}
	next.fired = true
	if next.at.After(f.now) {
		f.now = next.at
	}
	return next
}

// Pending returns the number of scheduled timers that have neither fired nor
// been stopped.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}
