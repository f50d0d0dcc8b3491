package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogDriver(t *testing.T) {
	d := newLogDriver(nil)

	assert.Error(t, d.SetDutyCycle(4, 10), "pin not set up")

	require.NoError(t, d.Setup(4, PinModePWM))
	require.NoError(t, d.Start(4, 0))
	require.NoError(t, d.SetDutyCycle(4, 55))
	assert.Equal(t, 55.0, d.duty[4])

	assert.Error(t, d.Setup(4, PinModeInput), "mode change on a live pin")

	require.NoError(t, d.Setup(5, PinModeInput))
	assert.Error(t, d.SetDutyCycle(5, 10), "input pin")

	assert.NoError(t, d.Close())
}

func TestNewPWMDriver(t *testing.T) {
	d, err := newPWMDriver(LEDConfig{Driver: driverLog}, nil)
	require.NoError(t, err)
	assert.IsType(t, &logDriver{}, d)

	_, err = newPWMDriver(LEDConfig{Driver: "spi"}, nil)
	assert.Error(t, err)

	_, err = newButtonInput(driverLog, ButtonConfig{Pin: 16})
	assert.Error(t, err)
}

func TestPeriphDuty(t *testing.T) {
	assert.Equal(t, periphDuty(0), periphDuty(-5))
	assert.Less(t, periphDuty(10), periphDuty(90))
	assert.Equal(t, periphDuty(100), periphDuty(150))
}

func TestLogDriver_DrivesChannels(t *testing.T) {
	d := newLogDriver(nil)
	channels := newTestChannels(t, d)
	a, err := NewAnimator(channels, nil, nil)
	require.NoError(t, err)
	a.sleep = func(_ time.Duration) {}

	require.NoError(t, a.FadeTo(map[string]float64{ChannelBlue: 100}, turnStartedStepDelay))
	assert.Equal(t, 100.0, d.duty[testPinBlue])
	assert.Equal(t, 0.0, d.duty[testPinRed])
}
