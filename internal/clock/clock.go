// Package clock supplies the scheduler debounce timers are registered with.
package clock

import (
	"sync"
	"time"
)

// Timer is a pending scheduled callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the timer, false if it already fired or was stopped.
	Stop() bool
}

// Scheduler provides the current time and one-shot delayed callbacks.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// RealScheduler runs callbacks on wall-clock timers. When a lock is supplied,
// each callback runs while holding it, so timer fires serialise with the
// other mutations guarded by the same lock.
type RealScheduler struct {
	lock sync.Locker
}

// NewRealScheduler returns a wall-clock scheduler; lock may be nil.
func NewRealScheduler(lock sync.Locker) *RealScheduler {
	return &RealScheduler{lock: lock}
}

// Now returns the current wall-clock time.
func (s *RealScheduler) Now() time.Time {
	return time.Now()
}

// AfterFunc schedules f to run after d.
func (s *RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	if s.lock == nil {
		return time.AfterFunc(d, f)
	}
	return time.AfterFunc(d, func() {
		s.lock.Lock()
		defer s.lock.Unlock()
		f()
	})
}
