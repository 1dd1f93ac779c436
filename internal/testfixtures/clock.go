package testfixtures

import (
	"sync"
	"time"
)

// Clock is the time source a Harness shares between its store, bus and
// services, so session expiry, poll deadlines and timestamps move together.
type Clock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewClock starts at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{now: start.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// NowFunc returns Now for injection. A nil clock falls back to wall time.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}

// Advance moves the clock by d and returns the new instant.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Pass moves the clock one second beyond deadline, or leaves it alone when it
// is already later.
func (c *Clock) Pass(deadline time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.now.After(deadline) {
		c.now = deadline.Add(time.Second).UTC()
	}
	return c.now
}
