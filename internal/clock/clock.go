// Package clock provides the time sources the scheduler steps: a logical
// cycle counter and a wall-clock variant that reports lag.
package clock

// Clock is a monotonic time source. The scheduler calls PreFrame once per
// loop iteration, then PreCycle and Advance once per reasoning cycle.
type Clock interface {
	// Time returns the current time in clock units.
	Time() int64
	// TimeSinceLastCycle returns how much time the last cycle covered.
	TimeSinceLastCycle() int64
	PreCycle()
	PreFrame()
	// Advance moves logical time forward by one cycle.
	Advance()
	Reset()
}

// CycleClock counts reasoning cycles. One cycle is one unit.
type CycleClock struct {
	t, last int64
}

var _ Clock = (*CycleClock)(nil)

// NewCycleClock returns a CycleClock at time zero.
func NewCycleClock() *CycleClock { return &CycleClock{} }

func (c *CycleClock) Time() int64               { return c.t }
func (c *CycleClock) TimeSinceLastCycle() int64 { return c.t - c.last }
func (c *CycleClock) PreCycle()                 {}
func (c *CycleClock) PreFrame()                 {}

func (c *CycleClock) Advance() {
	c.last = c.t
	c.t++
}

func (c *CycleClock) Reset() {
	c.t, c.last = 0, 0
}
