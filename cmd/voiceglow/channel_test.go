package main

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDutyChannel_SetsUpPWMAndStartsDark(t *testing.T) {
	drv := newRecordingDriver()

	ch, err := NewDutyChannel(ChannelRed, testPinRed, drv)
	require.NoError(t, err)

	assert.Equal(t, PinModePWM, drv.modes[testPinRed])
	assert.Equal(t, 0.0, drv.started[testPinRed])
	assert.Equal(t, 0.0, ch.Duty())
	assert.Empty(t, drv.allWrites())
}

func TestNewDutyChannel_ConfigurationFaults(t *testing.T) {
	failing := newRecordingDriver()
	failing.setupErr = errors.New("pin busy")

	tests := []struct {
		name   string
		chName string
		pin    int
		driver PWMDriver
	}{
		{name: "empty name", chName: "", pin: 1, driver: newRecordingDriver()},
		{name: "negative pin", chName: ChannelRed, pin: -1, driver: newRecordingDriver()},
		{name: "nil driver", chName: ChannelRed, pin: 1, driver: nil},
		{name: "setup fails", chName: ChannelRed, pin: 1, driver: failing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDutyChannel(tt.chName, tt.pin, tt.driver)
			var cf *ConfigurationFault
			require.ErrorAs(t, err, &cf)
			assert.Equal(t, tt.pin, cf.Pin)
		})
	}

	_, err := NewDutyChannel(ChannelRed, 1, failing)
	assert.ErrorIs(t, err, failing.setupErr)
}

func TestDutyChannel_SetClampsAndWritesStoredValue(t *testing.T) {
	drv := newRecordingDriver()
	ch, err := NewDutyChannel(ChannelGreen, testPinGreen, drv)
	require.NoError(t, err)

	for _, tc := range []struct {
		in, want float64
	}{
		{in: 42.5, want: 42.5},
		{in: 150, want: 100},
		{in: -3, want: 0},
		{in: math.NaN(), want: 0},
		{in: math.Inf(1), want: 100},
	} {
		require.NoError(t, ch.set(tc.in))
		assert.Equal(t, tc.want, ch.Duty(), "set(%v)", tc.in)
	}

	assert.Equal(t, []float64{42.5, 100, 0, 0, 100}, drv.writesFor(testPinGreen))
}

func TestDutyChannel_HardwareFaultKeepsRecordedDuty(t *testing.T) {
	drv := newRecordingDriver()
	ch, err := NewDutyChannel(ChannelBlue, testPinBlue, drv)
	require.NoError(t, err)

	drv.setFailWrite(func(int, float64) error { return errTestWrite })

	err = ch.set(30)
	var hw *HardwareFault
	require.ErrorAs(t, err, &hw)
	assert.Equal(t, ChannelBlue, hw.Channel)
	assert.Equal(t, testPinBlue, hw.Pin)
	assert.Equal(t, 30.0, hw.Duty)
	assert.ErrorIs(t, err, errTestWrite)
	assert.Equal(t, 30.0, ch.Duty())
}

func TestDutyChannel_StepTowardMovesAtMostOneUnit(t *testing.T) {
	drv := newRecordingDriver()
	ch, err := NewDutyChannel(ChannelRed, testPinRed, drv)
	require.NoError(t, err)

	var reached bool
	for i := 0; i < 3; i++ {
		reached, err = ch.stepToward(2.5)
		require.NoError(t, err)
	}
	assert.True(t, reached)
	assert.Equal(t, []float64{1, 2, 2.5}, drv.writesFor(testPinRed))

	// Already at target: nothing is written.
	reached, err = ch.stepToward(2.5)
	require.NoError(t, err)
	assert.True(t, reached)
	assert.Len(t, drv.writesFor(testPinRed), 3)

	reached, err = ch.stepToward(0)
	require.NoError(t, err)
	assert.False(t, reached)
	assert.Equal(t, 1.5, ch.Duty())
}

func TestPinMode_String(t *testing.T) {
	assert.Equal(t, "pwm", PinModePWM.String())
	assert.Equal(t, "input", PinModeInput.String())
}
