package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeScheduler_StartsAtEpoch(t *testing.T) {
	s := NewFakeScheduler(time.Time{})
	assert.Equal(t, Epoch, s.Now())
}

func TestFakeScheduler_AdvanceMovesClock(t *testing.T) {
	s := NewFakeScheduler(time.Time{})
	s.Advance(1500 * time.Millisecond)
	assert.Equal(t, Epoch.Add(1500*time.Millisecond), s.Now())
}

func TestFakeScheduler_FiresDueTimers(t *testing.T) {
	s := NewFakeScheduler(time.Time{})
	var fired []string
	var firedAt []time.Time

	s.AfterFunc(300*time.Millisecond, func() {
		fired = append(fired, "b")
		firedAt = append(firedAt, s.Now())
	})
	s.AfterFunc(100*time.Millisecond, func() {
		fired = append(fired, "a")
		firedAt = append(firedAt, s.Now())
	})
	s.AfterFunc(time.Second, func() { fired = append(fired, "c") })

	s.Advance(500 * time.Millisecond)

	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, []time.Time{Epoch.Add(100 * time.Millisecond), Epoch.Add(300 * time.Millisecond)}, firedAt)
	assert.Equal(t, 1, s.Pending())
	assert.Equal(t, Epoch.Add(500*time.Millisecond), s.Now())
}

func TestFakeScheduler_TiesFireInScheduleOrder(t *testing.T) {
	s := NewFakeScheduler(time.Time{})
	var fired []int
	for i := 1; i <= 3; i++ {
		s.AfterFunc(time.Second, func() { fired = append(fired, i) })
	}

	s.Advance(time.Second)
	assert.Equal(t, []int{1, 2, 3}, fired)
}

func TestFakeScheduler_Stop(t *testing.T) {
	s := NewFakeScheduler(time.Time{})
	fired := false
	stop := s.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, stop())
	assert.False(t, stop(), "second stop reports already stopped")

	s.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestFakeScheduler_StopAfterFire(t *testing.T) {
	s := NewFakeScheduler(time.Time{})
	stop := s.AfterFunc(time.Second, func() {})

	s.Advance(time.Second)
	assert.False(t, stop())
}

func TestFakeScheduler_CallbackCanReschedule(t *testing.T) {
	s := NewFakeScheduler(time.Time{})
	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			s.AfterFunc(100*time.Millisecond, tick)
		}
	}
	s.AfterFunc(100*time.Millisecond, tick)

	s.Advance(time.Second)
	assert.Equal(t, 3, count)
}
