package clock

import (
	"fmt"
	"time"
)

// Lag describes a frame that took longer than the threshold.
type Lag struct {
	Frame     time.Duration
	Threshold time.Duration
}

func (l Lag) String() string {
	return fmt.Sprintf("lag: frame took %s, threshold %s", l.Frame, l.Threshold)
}

// RealtimeOptions configures a RealtimeClock.
type RealtimeOptions struct {
	// Unit is the length of one clock unit. Zero means one millisecond.
	Unit time.Duration
	// PerCycle samples the wall clock before every cycle instead of once per
	// frame. Sampling is not free when many cycles run per frame.
	PerCycle bool
	// LagThreshold is the longest acceptable frame. Zero disables lag checks.
	// The scheduler sets it to Duration x cycle time.
	LagThreshold time.Duration
	OnLag        func(Lag)
	// Now replaces time.Now, for tests.
	Now func() time.Time
}

// RealtimeClock reports wall time, in units since the last Reset. Advance is
// a no-op: time moves on its own and is only observed when sampled.
type RealtimeClock struct {
	opts RealtimeOptions

	start   time.Time
	t, last int64
	sampled bool

	frameStart time.Time
}

var _ Clock = (*RealtimeClock)(nil)

// NewRealtimeClock creates a RealtimeClock started now.
func NewRealtimeClock(opts RealtimeOptions) *RealtimeClock {
	if opts.Unit <= 0 {
		opts.Unit = time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OnLag == nil {
		opts.OnLag = func(Lag) {}
	}
	c := &RealtimeClock{opts: opts}
	c.Reset()
	return c
}

func (c *RealtimeClock) Time() int64               { return c.t }
func (c *RealtimeClock) TimeSinceLastCycle() int64 { return c.t - c.last }
func (c *RealtimeClock) Advance()                  {}

// SetLagThreshold changes the lag threshold for subsequent frames.
func (c *RealtimeClock) SetLagThreshold(d time.Duration) { c.opts.LagThreshold = d }

func (c *RealtimeClock) PreCycle() {
	if c.opts.PerCycle {
		c.update(c.opts.Now())
	}
}

// PreFrame closes the previous frame, reporting lag when it ran past the
// threshold, and opens the next one.
func (c *RealtimeClock) PreFrame() {
	now := c.opts.Now()
	if !c.opts.PerCycle {
		c.update(now)
	}
	if !c.frameStart.IsZero() && c.opts.LagThreshold > 0 {
		if frame := now.Sub(c.frameStart); frame > c.opts.LagThreshold {
			c.opts.OnLag(Lag{Frame: frame, Threshold: c.opts.LagThreshold})
		}
	}
	c.frameStart = now
}

func (c *RealtimeClock) Reset() {
	c.start = c.opts.Now()
	c.t, c.last = 0, 0
	c.sampled = false
	c.frameStart = time.Time{}
}

// ToDuration converts clock units to wall time.
func (c *RealtimeClock) ToDuration(units int64) time.Duration {
	return time.Duration(units) * c.opts.Unit
}

// SecondsSinceStart returns the last sampled time in seconds.
func (c *RealtimeClock) SecondsSinceStart() float64 {
	return c.ToDuration(c.t).Seconds()
}

func (c *RealtimeClock) String() string {
	return fmt.Sprintf("%.3fs", c.SecondsSinceStart())
}

func (c *RealtimeClock) update(now time.Time) {
	t := int64(now.Sub(c.start) / c.opts.Unit)
	if c.sampled {
		c.last = c.t
	} else {
		// first sample covers no time
		c.last = t
		c.sampled = true
	}
	c.t = t
}
