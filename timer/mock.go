package timer

import (
	"sync"
	"time"
)

// Mock is a deterministic Scheduler for tests. Time only moves when Advance
// is called, and due callbacks run synchronously on the advancing goroutine
// in deadline order.
type Mock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*mockTimer
}

type mockTimer struct {
	mock     *Mock
	deadline time.Time
	f        func()
	stopped  bool
	fired    bool
}

// NewMock creates a mock scheduler starting at a fixed, arbitrary instant.
func NewMock() *Mock {
	return &Mock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the mock's current time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc schedules f to run when the mock clock reaches now + d.
func (m *Mock) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &mockTimer{mock: m, deadline: m.now.Add(d), f: f}
	m.timers = append(m.timers, t)
	return t
}

func (t *mockTimer) Stop() bool {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward by d, firing every due callback in
// deadline order. Callbacks may schedule new timers; those fire too if they
// fall within the window.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)

	for {
		next := m.nextDueLocked(target)
		if next == nil {
			break
		}
		if next.deadline.After(m.now) {
			m.now = next.deadline
		}
		next.fired = true
		m.mu.Unlock()
		next.f()
		m.mu.Lock()
	}

	m.now = target
	m.mu.Unlock()
}

// nextDueLocked returns the earliest live timer with deadline <= target, or
// nil if none is due.
func (m *Mock) nextDueLocked(target time.Time) *mockTimer {
	var next *mockTimer
	for _, t := range m.timers {
		if t.stopped || t.fired || t.deadline.After(target) {
			continue
		}
		if next == nil || t.deadline.Before(next.deadline) {
			next = t
		}
	}
	return next
}

// Pending returns the number of timers that have neither fired nor been
// stopped.
func (m *Mock) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}
