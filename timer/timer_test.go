package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestForegroundAfterFunc(t *testing.T) {
	var fired atomic.Bool
	done := make(chan struct{})

	Foreground{}.AfterFunc(10*time.Millisecond, func() {
		fired.Store(true)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("foreground timer did not fire")
	}
	if !fired.Load() {
		t.Error("callback did not run")
	}
}

func TestForegroundStop(t *testing.T) {
	timer := Background{}.AfterFunc(time.Hour, func() {
		t.Error("stopped timer fired")
	})
	if !timer.Stop() {
		t.Error("Stop() on a pending timer returned false")
	}
}

func TestMockAdvanceFiresInOrder(t *testing.T) {
	m := NewMock()
	var order []int

	m.AfterFunc(30*time.Millisecond, func() { order = append(order, 3) })
	m.AfterFunc(10*time.Millisecond, func() { order = append(order, 1) })
	m.AfterFunc(20*time.Millisecond, func() { order = append(order, 2) })

	m.Advance(25 * time.Millisecond)
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("fired order = %v, want [1 2]", order)
	}

	m.Advance(10 * time.Millisecond)
	if len(order) != 3 || order[2] != 3 {
		t.Errorf("fired order = %v, want [1 2 3]", order)
	}
}

func TestMockStop(t *testing.T) {
	m := NewMock()
	timer := m.AfterFunc(10*time.Millisecond, func() {
		t.Error("stopped timer fired")
	})

	if !timer.Stop() {
		t.Error("Stop() on a pending timer returned false")
	}
	if timer.Stop() {
		t.Error("second Stop() returned true")
	}

	m.Advance(time.Hour)
	if m.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", m.Pending())
	}
}

func TestMockRearmWithinAdvance(t *testing.T) {
	m := NewMock()
	var fires int

	var rearm func()
	rearm = func() {
		fires++
		if fires < 3 {
			m.AfterFunc(10*time.Millisecond, rearm)
		}
	}
	m.AfterFunc(10*time.Millisecond, rearm)

	// A rearming timer must fire repeatedly inside one Advance window.
	m.Advance(35 * time.Millisecond)
	if fires != 3 {
		t.Errorf("fires = %d, want 3", fires)
	}

	if got := m.Now().Sub(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)); got != 35*time.Millisecond {
		t.Errorf("clock advanced %v, want 35ms", got)
	}
}

func TestMockNowAdvances(t *testing.T) {
	m := NewMock()
	start := m.Now()
	m.Advance(5 * time.Second)
	if m.Now().Sub(start) != 5*time.Second {
		t.Errorf("Now() moved %v, want 5s", m.Now().Sub(start))
	}
}
