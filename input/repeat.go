package input

import (
	"time"
)

// RepeatTracker fires synthetic press events at the configured delay and
// rate for the most recently held key. Modifier keys never repeat.
type RepeatTracker struct {
	delay time.Duration
	rate  time.Duration

	held    *KeyEvent
	nextDue time.Time
}

// NewRepeatTracker creates a tracker; rate is presses per second.
func NewRepeatTracker(delay time.Duration, rate int) *RepeatTracker {
	if rate <= 0 {
		rate = 25
	}
	return &RepeatTracker{
		delay: delay,
		rate:  time.Second / time.Duration(rate),
	}
}

// KeyDown records a press; it replaces any previously held key.
func (t *RepeatTracker) KeyDown(ev KeyEvent, now time.Time) {
	if ev.Key.IsModifier() {
		return
	}
	held := ev
	held.Repeat = true
	t.held = &held
	t.nextDue = now.Add(t.delay)
}

// KeyUp stops repeating when the released keycode matches the held key.
func (t *RepeatTracker) KeyUp(code uint16) {
	if t.held != nil && t.held.Code == code {
		t.held = nil
	}
}

// Stop cancels any held key (focus loss, session disable).
func (t *RepeatTracker) Stop() { t.held = nil }

// Tick returns the synthetic repeat events due at now.
func (t *RepeatTracker) Tick(now time.Time) []KeyEvent {
	if t.held == nil || now.Before(t.nextDue) {
		return nil
	}
	var out []KeyEvent
	for !now.Before(t.nextDue) {
		out = append(out, *t.held)
		t.nextDue = t.nextDue.Add(t.rate)
		if len(out) >= 32 {
			// A long stall should not flood the PTY.
			t.nextDue = now.Add(t.rate)
			break
		}
	}
	return out
}

// NextDeadline returns the time of the next pending repeat, ok=false when
// no key is held.
func (t *RepeatTracker) NextDeadline() (time.Time, bool) {
	if t.held == nil {
		return time.Time{}, false
	}
	return t.nextDue, true
}
