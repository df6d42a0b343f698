package util

import (
	"sync"
	"time"
)

// Clock abstracts reads of the current time
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now implements Clock
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ManualClock only moves when told to
type ManualClock struct {
	now  time.Time
	lock *sync.Mutex
}

// NewManualClock creates a ManualClock reading start
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{
		now:  start,
		lock: new(sync.Mutex),
	}
}

// Now implements Clock
func (c *ManualClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t
func (c *ManualClock) Set(t time.Time) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = t
}
