package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnimationClock_AdvanceAndWrap(t *testing.T) {
	c := NewAnimationClock(breathingIncrement)
	assert.Equal(t, 0.0, c.Phase())

	c.Advance()
	assert.InDelta(t, 0.01, c.Phase(), 1e-12)

	c.phase = twoPi - 0.005
	c.Advance()
	assert.Equal(t, 0.0, c.Phase(), "phase wraps to 0 once it passes 2π")
}

func TestAnimationClock_StaysInRangeOverManyCycles(t *testing.T) {
	c := NewAnimationClock(breathingIncrement)
	for i := 0; i < 3*700; i++ {
		c.Advance()
		if c.Phase() < 0 || c.Phase() >= twoPi {
			t.Fatalf("step %d: phase %v outside [0, 2π)", i, c.Phase())
		}
	}
}

func TestAnimationClock_ResetToTrough(t *testing.T) {
	c := NewAnimationClock(breathingIncrement)
	for i := 0; i < 123; i++ {
		c.Advance()
	}
	c.ResetToTrough()

	assert.Equal(t, 3*math.Pi/2, c.Phase())
	assert.InDelta(t, 0, breathingDuty(c.Phase()), 1e-9)
}

func TestBreathingDuty_Shape(t *testing.T) {
	assert.InDelta(t, 100, breathingDuty(math.Pi/2), 1e-9, "peak")
	assert.InDelta(t, 0, breathingDuty(3*math.Pi/2), 1e-9, "trough")

	// exp(0) = 1 sits well below the midpoint of [1/e, e].
	mid := breathingDuty(0)
	assert.InDelta(t, (1-1/math.E)*100/(math.E-1/math.E), mid, 1e-9)
	assert.Less(t, mid, 50.0)

	for phase := 0.0; phase < twoPi; phase += 0.01 {
		d := breathingDuty(phase)
		if d < dutyMin || d > dutyMax {
			t.Fatalf("breathingDuty(%v) = %v outside [0,100]", phase, d)
		}
	}
}
