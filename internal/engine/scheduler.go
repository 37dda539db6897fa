package engine

import "time"

// Scheduler supplies the engine's notion of time.
//
// AfterFunc schedules f to run once after d and returns a stop function.
// Stop reports false if f already ran or was stopped.
//
// The default WallScheduler uses time.Now and time.AfterFunc. Tests use a
// fake scheduler that fires callbacks only when simulated time advances.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

// WallScheduler schedules on the real clock.
type WallScheduler struct{}

// Now returns the current wall-clock time.
func (WallScheduler) Now() time.Time { return time.Now() }

// AfterFunc runs f in its own goroutine after d.
func (WallScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}
