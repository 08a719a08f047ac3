package engine

import "math"

// CrossfadeGains returns the equal-power gains for deck A and deck B at
// position p, where 0 is full A and 1 is full B. gA² + gB² = 1 everywhere.
func CrossfadeGains(p float64) (a, b float64) {
	p = clamp01(p)
	return math.Cos(p * math.Pi / 2), math.Sin(p * math.Pi / 2)
}

// Crossfader holds the manual position and an optional automatic ramp. While a
// ramp is active it owns the position; any manual move cancels it.
type Crossfader struct {
	position float64

	auto    bool
	from    float64
	target  float64
	total   int // frames
	elapsed int
}

// Position is the effective position in [0, 1].
func (c *Crossfader) Position() float64 {
	return c.position
}

// Auto reports whether an automatic ramp is running.
func (c *Crossfader) Auto() bool {
	return c.auto
}

// Progress is the completed fraction of the running ramp, or 0 when idle.
func (c *Crossfader) Progress() float64 {
	if !c.auto || c.total <= 0 {
		return 0
	}
	return clamp01(float64(c.elapsed) / float64(c.total))
}

// SetManual moves the fader and cancels any ramp.
func (c *Crossfader) SetManual(p float64) {
	c.auto = false
	c.position = clamp01(p)
}

// StartAuto ramps linearly from the current position to target over frames.
// A non-positive duration jumps straight to target.
func (c *Crossfader) StartAuto(target float64, frames int) {
	target = clamp01(target)
	if frames <= 0 {
		c.SetManual(target)
		return
	}
	c.auto = true
	c.from = c.position
	c.target = target
	c.total = frames
	c.elapsed = 0
}

// Advance moves a running ramp forward by frames. It reports whether the ramp
// finished during this call.
func (c *Crossfader) Advance(frames int) bool {
	if !c.auto {
		return false
	}
	c.elapsed += frames
	if c.elapsed >= c.total {
		c.position = c.target
		c.auto = false
		return true
	}
	t := float64(c.elapsed) / float64(c.total)
	c.position = clamp01(c.from + (c.target-c.from)*t)
	return false
}

// Gains returns the deck gains for the current position.
func (c *Crossfader) Gains() (a, b float64) {
	return CrossfadeGains(c.position)
}
