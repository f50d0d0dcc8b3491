package main

import "math"

// AnimationClock is the phase of the idle breathing waveform, kept in [0, 2π).
type AnimationClock struct {
	phase     float64
	increment float64
}

// NewAnimationClock returns a clock at phase 0 advancing by increment per step.
func NewAnimationClock(increment float64) *AnimationClock {
	return &AnimationClock{increment: increment}
}

// Phase returns the current phase.
func (c *AnimationClock) Phase() float64 {
	return c.phase
}

// Advance moves the clock one sampling increment forward, wrapping to 0 once
// it passes 2π.
func (c *AnimationClock) Advance() {
	c.phase += c.increment
	if c.phase >= twoPi {
		c.phase = 0
	}
}

// ResetToTrough moves the clock to the waveform minimum so the next breath
// starts dark instead of jumping to an arbitrary brightness.
func (c *AnimationClock) ResetToTrough() {
	c.phase = troughPhase
}

// breathingScale maps exp(sin φ) from [1/e, e] onto [0, 100].
var breathingScale = dutyMax / (math.E - 1/math.E)

// breathingDuty is the normalized exp(sin) waveform: 0 at 3π/2, 100 at π/2,
// with a slow rise and a quick fall.
func breathingDuty(phase float64) float64 {
	return clampDuty((math.Exp(math.Sin(phase)) - 1/math.E) * breathingScale)
}
