package clock

import (
	"sync"
	"testing"
	"time"
)

var start = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

func TestManualFiresInDeadlineOrder(t *testing.T) {
	m := NewManual(start)
	var order []string
	var at []time.Time
	m.AfterFunc(3*time.Second, func() { order = append(order, "c"); at = append(at, m.Now()) })
	m.AfterFunc(1*time.Second, func() { order = append(order, "a"); at = append(at, m.Now()) })
	m.AfterFunc(2*time.Second, func() { order = append(order, "b"); at = append(at, m.Now()) })

	m.Advance(2 * time.Second)
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("unexpected order after 2s: %v", order)
	}
	m.Advance(time.Second)
	if len(order) != 3 || order[2] != "c" {
		t.Fatalf("unexpected order after 3s: %v", order)
	}
	for i, want := range []time.Duration{time.Second, 2 * time.Second, 3 * time.Second} {
		if !at[i].Equal(start.Add(want)) {
			t.Fatalf("callback %d observed %v, want %v", i, at[i], start.Add(want))
		}
	}
	if !m.Now().Equal(start.Add(3 * time.Second)) {
		t.Fatalf("unexpected clock %v", m.Now())
	}
}

func TestManualStop(t *testing.T) {
	m := NewManual(start)
	fired := false
	timer := m.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Fatalf("expected first stop to report true")
	}
	if timer.Stop() {
		t.Fatalf("expected second stop to report false")
	}
	m.Advance(time.Minute)
	if fired {
		t.Fatalf("stopped timer fired")
	}
	if m.Pending() != 0 {
		t.Fatalf("expected no pending timers")
	}
}

func TestManualCallbackMaySchedule(t *testing.T) {
	m := NewManual(start)
	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			m.AfterFunc(time.Second, tick)
		}
	}
	m.AfterFunc(time.Second, tick)
	m.Advance(10 * time.Second)
	if count != 3 {
		t.Fatalf("expected chained timers to fire 3 times, got %d", count)
	}
}

func TestRealSchedulerHoldsLock(t *testing.T) {
	var mu sync.Mutex
	s := NewRealScheduler(&mu)
	done := make(chan bool, 1)

	mu.Lock()
	s.AfterFunc(time.Millisecond, func() {
		// TryLock fails because the scheduler already holds mu.
		done <- !mu.TryLock()
	})
	time.Sleep(20 * time.Millisecond)
	mu.Unlock()

	select {
	case held := <-done:
		if !held {
			t.Fatalf("expected callback to run under the lock")
		}
	case <-time.After(time.Second):
		t.Fatalf("callback never ran")
	}
}

func TestRealSchedulerStop(t *testing.T) {
	s := NewRealScheduler(nil)
	fired := make(chan struct{}, 1)
	timer := s.AfterFunc(50*time.Millisecond, func() { fired <- struct{}{} })
	if !timer.Stop() {
		t.Fatalf("expected stop before deadline to succeed")
	}
	select {
	case <-fired:
		t.Fatalf("stopped timer fired")
	case <-time.After(100 * time.Millisecond):
	}
}
