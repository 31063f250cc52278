package domain

import (
	"time"
)

// UsageWindow tracks usage of one feature by one user inside the current
// time window. One window exists per (user, feature) pair, created lazily on
// first evaluation.
//
// Invariants: Count never exceeds the feature limit while the window is
// live; WindowStart is monotonic non-decreasing; Count resets to zero
// exactly when the window expires.
type UsageWindow struct {
	Count       uint
	WindowStart time.Time
}

// Expired reports whether the window has run its course at the given
// instant. A clock that has rolled back behind WindowStart reads as not
// expired: the reset must never fire on anomalous time.
func (w UsageWindow) Expired(now time.Time, window time.Duration) bool {
	if now.Before(w.WindowStart) {
		return false
	}
	return now.Sub(w.WindowStart) >= window
}

// Cooldown returns the time remaining until the window resets, clamped to
// [0, window]. Clock rollback reports the full window rather than a
// negative or oversized value.
func (w UsageWindow) Cooldown(now time.Time, window time.Duration) time.Duration {
	if now.Before(w.WindowStart) {
		return window
	}
	remaining := window - now.Sub(w.WindowStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Anomalous reports whether now sits behind the recorded window start,
// i.e. the wall clock moved backwards since the window opened.
func (w UsageWindow) Anomalous(now time.Time) bool {
	return now.Before(w.WindowStart)
}
