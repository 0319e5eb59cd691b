package timer

import (
	"testing"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func TestNew_Inactive(t *testing.T) {
	tm := New(10*time.Second, nil)
	if tm.Active() {
		t.Error("new timer should be inactive")
	}
	if _, ok := tm.StartedAt(); ok {
		t.Error("new timer should have no start time")
	}
	if tm.Duration() != 10*time.Second {
		t.Errorf("Duration() = %v, want 10s", tm.Duration())
	}
}

func TestTimer_ActiveWindow(t *testing.T) {
	durations := []time.Duration{
		time.Millisecond,
		2 * time.Second,
		10 * time.Second,
		90 * time.Minute,
	}

	for _, d := range durations {
		t.Run(d.String(), func(t *testing.T) {
			clock := newClock()
			tm := New(d, clock.Now)
			t0 := clock.Now()
			tm.Activate()

			// Every polled instant inside [t0, t0+d) reports active.
			step := d / 7
			if step == 0 {
				step = 1
			}
			for elapsed := time.Duration(0); elapsed < d; elapsed += step {
				clock.t = t0.Add(elapsed)
				tm.Update()
				if !tm.Active() {
					t.Fatalf("inactive at elapsed %v, want active", elapsed)
				}
			}

			clock.t = t0.Add(d)
			tm.Update()
			if tm.Active() {
				t.Fatalf("active at elapsed %v, want inactive", d)
			}

			clock.t = t0.Add(d + time.Hour)
			tm.Update()
			if tm.Active() {
				t.Fatal("timer re-activated on its own")
			}
		})
	}
}

func TestTimer_ActiveReflectsLastUpdate(t *testing.T) {
	clock := newClock()
	tm := New(2*time.Second, clock.Now)
	tm.Activate()

	clock.Advance(5 * time.Second)
	if !tm.Active() {
		t.Error("Active() should not change until Update() is polled")
	}
	tm.Update()
	if tm.Active() {
		t.Error("Active() should be false after Update() past the deadline")
	}
}

func TestTimer_ReactivateRestartsWindow(t *testing.T) {
	clock := newClock()
	tm := New(10*time.Second, clock.Now)
	tm.Activate()

	clock.Advance(8 * time.Second)
	tm.Activate()

	clock.Advance(8 * time.Second)
	tm.Update()
	if !tm.Active() {
		t.Error("re-activation should restart the window")
	}
	started, ok := tm.StartedAt()
	if !ok || !started.Equal(clock.Now().Add(-8*time.Second)) {
		t.Errorf("StartedAt() = %v, %v", started, ok)
	}

	clock.Advance(2 * time.Second)
	tm.Update()
	if tm.Active() {
		t.Error("timer should expire 10s after the second activation")
	}
}

func TestTimer_DeactivateIdempotent(t *testing.T) {
	tm := New(time.Second, nil)

	tm.Deactivate()
	tm.Deactivate()
	if tm.Active() {
		t.Error("timer should stay inactive")
	}

	tm.Activate()
	tm.Deactivate()
	tm.Deactivate()
	if tm.Active() {
		t.Error("timer should be inactive after Deactivate")
	}
	if _, ok := tm.StartedAt(); ok {
		t.Error("Deactivate should clear the start time")
	}
}

func TestTimer_Remaining(t *testing.T) {
	clock := newClock()
	tm := New(10*time.Second, clock.Now)

	if got := tm.Remaining(); got != 0 {
		t.Errorf("Remaining() on inactive = %v, want 0", got)
	}

	tm.Activate()
	clock.Advance(3 * time.Second)
	if got := tm.Remaining(); got != 7*time.Second {
		t.Errorf("Remaining() = %v, want 7s", got)
	}

	clock.Advance(time.Minute)
	if got := tm.Remaining(); got != 0 {
		t.Errorf("Remaining() past deadline = %v, want 0", got)
	}
}
