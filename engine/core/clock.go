package core

import "time"

// Clock measures elapsed time between frames.
type Clock struct {
	start time.Time
	last  time.Time
}

func (c *Clock) Start() {
	c.start = time.Now()
	c.last = c.start
}

// Tick returns the time elapsed since the previous Tick (or Start).
func (c *Clock) Tick() time.Duration {
	now := time.Now()
	delta := now.Sub(c.last)
	c.last = now
	return delta
}

// Elapsed returns the total time since Start.
func (c *Clock) Elapsed() time.Duration {
	return time.Since(c.start)
}
