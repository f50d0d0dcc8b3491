package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAnimator_ConfigurationFaults(t *testing.T) {
	drv := newRecordingDriver()
	red, err := NewDutyChannel(ChannelRed, testPinRed, drv)
	require.NoError(t, err)
	red2, err := NewDutyChannel(ChannelRed, testPinBlue, drv)
	require.NoError(t, err)

	for name, channels := range map[string][]*DutyChannel{
		"empty":     nil,
		"nil entry": {red, nil},
		"duplicate": {red, red2},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewAnimator(channels, nil, nil)
			var cf *ConfigurationFault
			assert.ErrorAs(t, err, &cf)
		})
	}
}

func TestFadeTo_CrossfadeStepsAndDuration(t *testing.T) {
	drv := newRecordingDriver()
	a, rec := newTestAnimator(t, drv, nil)

	require.NoError(t, a.FadeTo(map[string]float64{ChannelRed: 50}, turnStartedStepDelay))
	drv.reset()
	rec.reset()

	require.NoError(t, a.FadeTo(map[string]float64{ChannelBlue: 100}, turnStartedStepDelay))

	// Longest distance is 100 units: 100 micro-steps, a pause between each.
	assert.Equal(t, 99, rec.count())
	assert.Equal(t, 99*turnStartedStepDelay, rec.total())

	red := drv.writesFor(testPinRed)
	blue := drv.writesFor(testPinBlue)
	require.Len(t, red, 50)
	require.Len(t, blue, 100)
	assert.Equal(t, 49.0, red[0])
	assert.Equal(t, 0.0, red[49])
	assert.Equal(t, 1.0, blue[0])
	assert.Equal(t, 100.0, blue[99])
	assert.Empty(t, drv.writesFor(testPinGreen), "converged channels are not written")

	assert.Equal(t, map[string]float64{ChannelRed: 0, ChannelGreen: 0, ChannelBlue: 100}, a.Duties())
}

func TestFadeTo_Idempotent(t *testing.T) {
	drv := newRecordingDriver()
	a, rec := newTestAnimator(t, drv, nil)

	frame := map[string]float64{ChannelGreen: 37, ChannelBlue: 80}
	require.NoError(t, a.FadeTo(frame, turnFinishedStepDelay))
	first := a.Duties()
	drv.reset()
	rec.reset()

	require.NoError(t, a.FadeTo(frame, turnFinishedStepDelay))
	assert.Equal(t, first, a.Duties())
	assert.Empty(t, drv.allWrites())
	assert.Zero(t, rec.count())
}

func TestFadeTo_UnknownChannel(t *testing.T) {
	drv := newRecordingDriver()
	a, _ := newTestAnimator(t, drv, nil)

	err := a.FadeTo(map[string]float64{"purple": 100}, turnStartedStepDelay)
	require.Error(t, err)
	assert.Empty(t, drv.allWrites())
}

func TestFadeTo_TargetsAreClamped(t *testing.T) {
	drv := newRecordingDriver()
	a, _ := newTestAnimator(t, drv, nil)

	require.NoError(t, a.FadeTo(map[string]float64{ChannelRed: 250, ChannelGreen: -10}, turnStartedStepDelay))
	assert.Equal(t, 100.0, a.Channel(ChannelRed).Duty())
	assert.Equal(t, 0.0, a.Channel(ChannelGreen).Duty())
	assertDutiesInRange(t, drv.allWrites())
}

func TestFadeTo_HardwareFaultAbortsSequence(t *testing.T) {
	drv := newRecordingDriver()
	a, _ := newTestAnimator(t, drv, nil)

	drv.setFailWrite(func(pin int, duty float64) error {
		if pin == testPinBlue && duty >= 10 {
			return errTestWrite
		}
		return nil
	})

	err := a.FadeTo(map[string]float64{ChannelBlue: 100}, turnStartedStepDelay)
	var hw *HardwareFault
	require.ErrorAs(t, err, &hw)
	assert.Equal(t, ChannelBlue, hw.Channel)
	assert.ErrorIs(t, err, errTestWrite)

	// The failed value stays recorded; nothing is written after the fault.
	assert.Equal(t, 10.0, a.Channel(ChannelBlue).Duty())
	assert.Len(t, drv.writesFor(testPinBlue), 9)
}

func TestFadeTo_StopsAtShutdownBoundary(t *testing.T) {
	drv := newRecordingDriver()
	shutdown := NewShutdown(context.Background())
	a, rec := newTestAnimator(t, drv, shutdown)

	rec.hook = func(n int) {
		if n == 5 {
			shutdown.Trigger()
		}
	}

	err := a.FadeTo(map[string]float64{ChannelBlue: 100}, turnFinishedStepDelay)
	require.NoError(t, err, "interruption is not an error")

	// The in-flight step completes, the next one never starts.
	assert.Equal(t, 5.0, a.Channel(ChannelBlue).Duty())
	assert.Equal(t, 5, rec.count())
	assertDutiesInRange(t, drv.allWrites())
}

func TestPulse_TwoFullCycles(t *testing.T) {
	drv := newRecordingDriver()
	a, rec := newTestAnimator(t, drv, nil)

	require.NoError(t, a.Pulse(ChannelRed, 2, timeoutPulseStepDelay))

	red := drv.writesFor(testPinRed)
	require.Len(t, red, 400)
	peaks := 0
	for _, d := range red {
		if d == 100 {
			peaks++
		}
	}
	assert.Equal(t, 2, peaks)
	assert.Equal(t, 0.0, red[len(red)-1])
	assert.Empty(t, drv.writesFor(testPinGreen))
	assert.Empty(t, drv.writesFor(testPinBlue))
	assert.Equal(t, 4*99, rec.count())
}

func TestPulse_UnknownChannel(t *testing.T) {
	drv := newRecordingDriver()
	a, _ := newTestAnimator(t, drv, nil)

	assert.Error(t, a.Pulse("purple", 1, timeoutPulseStepDelay))
	assert.Empty(t, drv.allWrites())
}

func TestBreatheStep_StartsFromTroughAfterReset(t *testing.T) {
	drv := newRecordingDriver()
	a, rec := newTestAnimator(t, drv, nil)

	a.Clock().ResetToTrough()
	require.NoError(t, a.BreatheStep())

	writes := drv.allWrites()
	require.Len(t, writes, 3)
	for _, w := range writes {
		assert.InDelta(t, 0, w.Duty, 1e-9)
	}
	assert.InDelta(t, troughPhase+breathingIncrement, a.Clock().Phase(), 1e-12)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, breathingStepDelay, rec.total())
}

func TestBreatheStep_FullCycleStaysInRange(t *testing.T) {
	drv := newRecordingDriver()
	a, _ := newTestAnimator(t, drv, nil)

	for i := 0; i < 700; i++ {
		require.NoError(t, a.BreatheStep())
	}
	writes := drv.allWrites()
	assertDutiesInRange(t, writes)

	maxDuty := 0.0
	for _, w := range writes {
		maxDuty = max(maxDuty, w.Duty)
	}
	assert.InDelta(t, 100, maxDuty, 0.01)
}

func TestBreatheStep_FaultStillAdvancesClock(t *testing.T) {
	drv := newRecordingDriver()
	a, rec := newTestAnimator(t, drv, nil)
	drv.setFailWrite(func(int, float64) error { return errTestWrite })

	err := a.BreatheStep()
	var hw *HardwareFault
	require.ErrorAs(t, err, &hw)
	assert.InDelta(t, breathingIncrement, a.Clock().Phase(), 1e-12)
	assert.Equal(t, 1, rec.count())
}

func TestBlackout(t *testing.T) {
	drv := newRecordingDriver()
	a, _ := newTestAnimator(t, drv, nil)
	require.NoError(t, a.FadeTo(map[string]float64{ChannelRed: 3, ChannelGreen: 4, ChannelBlue: 5}, 0))
	drv.reset()

	require.NoError(t, a.Blackout())
	assert.Equal(t, map[string]float64{ChannelRed: 0, ChannelGreen: 0, ChannelBlue: 0}, a.Duties())
	assert.Len(t, drv.allWrites(), 3)
}
