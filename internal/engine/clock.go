package engine

import "sync/atomic"

// Clock is a monotonic logical clock.
//
// Input events and fusion decisions are stamped with strictly increasing
// seq numbers from the same clock, so seq gives a total order over
// everything an engine has done even when wall-clock timestamps tie.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
