// Package sim runs the tracker control loop against a scripted journey
// on a virtual clock: a bench that plays days of duty-cycling in
// milliseconds, with the receiver, modem, accelerometer and battery all
// following the journey's legs.
package sim

import (
	"sync"
	"time"
)

// Clock is the bench's time source. It keeps two timelines: the device
// clock the control loop reads, and the true journey time. A cold start
// leaves the device clock free-running near the epoch until Sync pulls
// it onto the truth, the way a modem delivers network time.
type Clock struct {
	mu    sync.Mutex
	now   time.Time
	truth time.Time
}

// NewClock starts both timelines at the journey start. With cold set the
// device clock begins at power-on instead, so the control loop has to
// establish time before it can schedule anything.
func NewClock(start time.Time, cold bool) *Clock {
	c := &Clock{now: start, truth: start}
	if cold {
		c.now = time.Unix(60, 0).UTC()
	}
	return c
}

// Now returns the device clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Truth returns the journey time.
func (c *Clock) Truth() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.truth
}

// Sync snaps the device clock onto the truth. The bench's network time
// arrives instantly; the control loop still waits its configured grace.
func (c *Clock) Sync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.truth
}

// Advance moves both timelines forward by d.
func (c *Clock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.truth = c.truth.Add(d)
}
