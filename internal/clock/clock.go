// Package clock abstracts wall time and one-shot timers so timer-driven
// logic can be tested against virtual time.
package clock

import "time"

// Timer is a single-shot timer handle. Stop reports whether the call
// prevented the timer from firing.
type Timer interface {
	Stop() bool
}

// Clock provides current time and timer scheduling.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// AfterFunc schedules f to run on its own goroutine after d.
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

// System returns the real-time clock backed by the time package.
func System() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
