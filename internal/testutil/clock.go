package testutil

import (
	"sort"
	"sync"
	"time"
)

// Epoch is the default start time of a FakeScheduler.
var Epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// FakeScheduler is a simulated clock for driving the engine in tests.
//
// Time stands still until Advance is called. Scheduled callbacks fire
// synchronously inside Advance, in due-time order (ties in scheduling
// order), with Now reporting each callback's due time.
//
// Thread-safety: all methods are safe for concurrent use. Callbacks run
// without the internal mutex held, so they may schedule or stop timers.
type FakeScheduler struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	timers []*fakeTimer
}

type fakeTimer struct {
	id int
	at time.Time
	f  func()
}

// NewFakeScheduler creates a scheduler whose clock starts at start.
// A zero start means Epoch.
func NewFakeScheduler(start time.Time) *FakeScheduler {
	if start.IsZero() {
		start = Epoch
	}
	return &FakeScheduler{now: start}
}

// Now returns the simulated time.
func (s *FakeScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// AfterFunc schedules f at Now()+d and returns its stop function.
func (s *FakeScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	t := &fakeTimer{id: s.nextID, at: s.now.Add(d), f: f}
	s.timers = append(s.timers, t)

	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, pending := range s.timers {
			if pending == t {
				s.timers = append(s.timers[:i], s.timers[i+1:]...)
				return true
			}
		}
		return false
	}
}

// Advance moves the clock forward by d, firing every timer that falls due.
func (s *FakeScheduler) Advance(d time.Duration) {
	s.AdvanceTo(s.Now().Add(d))
}

// AdvanceTo moves the clock to target, firing every timer due at or before
// it. Moving backwards is a no-op.
func (s *FakeScheduler) AdvanceTo(target time.Time) {
	for {
		s.mu.Lock()
		t := s.popDueLocked(target)
		if t == nil {
			if target.After(s.now) {
				s.now = target
			}
			s.mu.Unlock()
			return
		}
		if t.at.After(s.now) {
			s.now = t.at
		}
		s.mu.Unlock()

		t.f()
	}
}

func (s *FakeScheduler) popDueLocked(target time.Time) *fakeTimer {
	sort.SliceStable(s.timers, func(i, j int) bool {
		if s.timers[i].at.Equal(s.timers[j].at) {
			return s.timers[i].id < s.timers[j].id
		}
		return s.timers[i].at.Before(s.timers[j].at)
	})
	if len(s.timers) == 0 || s.timers[0].at.After(target) {
		return nil
	}
	t := s.timers[0]
	s.timers = s.timers[1:]
	return t
}

// Pending returns the number of scheduled, unfired timers.
func (s *FakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
