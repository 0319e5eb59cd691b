// Package timer provides a polled cooldown timer.
//
// A Timer reports active for a fixed duration after Activate and deactivates
// itself on the first Update at or past the deadline. It never looks at the
// clock on its own: Active reflects the last Update, so callers poll Update
// once per tick before trusting it. Timers are not safe for concurrent use.
package timer

import "time"

// Timer is a cooldown that stays active for a fixed duration once activated.
type Timer struct {
	duration  time.Duration
	active    bool
	startedAt time.Time
	now       func() time.Time
}

// New creates an inactive Timer. A nil clock means time.Now.
func New(duration time.Duration, now func() time.Time) *Timer {
	if now == nil {
		now = time.Now
	}
	return &Timer{
		duration: duration,
		now:      now,
	}
}

// Activate starts (or restarts) the window at the current time.
func (t *Timer) Activate() {
	t.active = true
	t.startedAt = t.now()
}

// Deactivate stops the timer. Calling it on an inactive timer is a no-op.
func (t *Timer) Deactivate() {
	t.active = false
	t.startedAt = time.Time{}
}

// Update deactivates the timer once the window has elapsed.
func (t *Timer) Update() {
	if t.active && t.now().Sub(t.startedAt) >= t.duration {
		t.Deactivate()
	}
}

// Active reports whether the timer was active at the last Update.
func (t *Timer) Active() bool {
	return t.active
}

// StartedAt returns the activation time; ok is false when inactive.
func (t *Timer) StartedAt() (started time.Time, ok bool) {
	return t.startedAt, t.active
}

// Remaining returns the time left in the window as of now, or zero.
func (t *Timer) Remaining() time.Duration {
	if !t.active {
		return 0
	}
	left := t.duration - t.now().Sub(t.startedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Duration returns the configured window length.
func (t *Timer) Duration() time.Duration {
	return t.duration
}
