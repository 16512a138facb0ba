package timer

import "time"

// Timer is a handle to a scheduled callback. Stop reports whether the
// callback was prevented from running; stopping an already-fired or
// already-stopped timer is a no-op.
type Timer interface {
	Stop() bool
}

// Scheduler schedules callbacks and reports the current time. It exists for
// two reasons: tests inject a deterministic implementation, and callers can
// choose between a foreground scheduler and one backed by platform timers
// that keep firing while the process is suspended.
type Scheduler interface {
	// Now returns the current time.
	Now() time.Time
	// AfterFunc runs f on its own goroutine after d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Foreground is a Scheduler backed by the standard library. Its timers may be
// paused while the hosting process is suspended by the OS, so it must not be
// used for liveness checks or probe retries.
type Foreground struct{}

// Now returns the current system time.
func (Foreground) Now() time.Time {
	return time.Now()
}

// AfterFunc schedules f using a standard library timer.
func (Foreground) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Background is a Scheduler whose timers are expected to fire even while the
// process is suspended. The guarantee itself is a platform capability: on
// mobile hosts the binding layer swaps in an implementation backed by
// OS-level background timers. On server platforms, where processes are not
// suspended, the standard library suffices.
type Background struct{}

// Now returns the current system time.
func (Background) Now() time.Time {
	return time.Now()
}

// AfterFunc schedules f using a standard library timer.
func (Background) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
