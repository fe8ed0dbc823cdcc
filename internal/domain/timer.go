package domain

import "time"

// TimerWindow is a named delay paired with a reference timestamp. The
// reference is moved forward only by Reset, never by unrelated events;
// the window reads as held for the full duration after the last reset,
// which is what gives derived signals their hysteresis.
type TimerWindow struct {
	Duration  time.Duration
	reference time.Time
}

func NewTimerWindow(d time.Duration, ref time.Time) TimerWindow {
	return TimerWindow{Duration: d, reference: ref}
}

// Reset moves the reference to now.
func (w *TimerWindow) Reset(now time.Time) {
	w.reference = now
}

// Held reports whether now still falls inside the window, i.e.
// now < reference + duration. Held is true on [ref, ref+d) and false
// from ref+d onward.
func (w *TimerWindow) Held(now time.Time) bool {
	return now.Before(w.reference.Add(w.Duration))
}

// Elapsed is the complement of Held.
func (w *TimerWindow) Elapsed(now time.Time) bool {
	return !w.Held(now)
}

// Reference returns the current reference timestamp.
func (w *TimerWindow) Reference() time.Time {
	return w.reference
}
