package stream

import (
	"time"

	"golang.org/x/time/rate"
)

// Cadence decides which simulation steps trigger a streaming update. It
// always fires on the first step, then on every Nth step and whenever the
// interval has elapsed since the last firing.
type Cadence struct {
	s rate.Sometimes
}

// NewCadence returns a cadence firing every n steps and every interval.
// A non-positive value disables that trigger; with both disabled the cadence
// fires on every step.
func NewCadence(every int, interval time.Duration) *Cadence {
	c := &Cadence{}
	if every > 0 {
		c.s.Every = every
	}
	if interval > 0 {
		c.s.Interval = interval
	}
	if every <= 0 && interval <= 0 {
		c.s.Every = 1
	}
	return c
}

// Step runs f if this step is due.
func (c *Cadence) Step(f func()) {
	c.s.Do(f)
}
