package main

import (
	"fmt"
	"math"
)

// PinMode selects how a driver configures a pin in Setup.
type PinMode int

const (
	PinModePWM PinMode = iota
	PinModeInput
)

func (m PinMode) String() string {
	switch m {
	case PinModePWM:
		return "pwm"
	case PinModeInput:
		return "input"
	default:
		return fmt.Sprintf("PinMode(%d)", int(m))
	}
}

// PWMDriver is the hardware capability the animation engine drives.
// Duty values are percentages in [0,100].
type PWMDriver interface {
	Setup(pin int, mode PinMode) error
	Start(pin int, initialDuty float64) error
	SetDutyCycle(pin int, duty float64) error
	Close() error
}

// ConfigurationFault reports an invalid pin or channel setup. It is fatal
// at startup.
type ConfigurationFault struct {
	Channel string
	Pin     int
	Reason  string
	Err     error
}

func (e *ConfigurationFault) Error() string {
	msg := fmt.Sprintf("configuration fault: channel %q pin %d: %s", e.Channel, e.Pin, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationFault) Unwrap() error { return e.Err }

// HardwareFault reports a failed duty-cycle write. The animation sequence
// that hit it is aborted; the next absolute write corrects the output.
type HardwareFault struct {
	Channel string
	Pin     int
	Duty    float64
	Err     error
}

func (e *HardwareFault) Error() string {
	return fmt.Sprintf("hardware fault: channel %q pin %d duty %.2f: %v", e.Channel, e.Pin, e.Duty, e.Err)
}

func (e *HardwareFault) Unwrap() error { return e.Err }

// DutyChannel is one LED color line: a pin, its last written duty value and
// the driver that owns the pin.
//
// Only the dispatcher goroutine (through the Animator) touches a channel, so
// there is no locking here.
type DutyChannel struct {
	Name string
	Pin  int

	duty   float64
	driver PWMDriver
}

// NewDutyChannel sets up pin for PWM output and starts it dark.
func NewDutyChannel(name string, pin int, driver PWMDriver) (*DutyChannel, error) {
	if name == "" {
		return nil, &ConfigurationFault{Channel: name, Pin: pin, Reason: "empty channel name"}
	}
	if pin < 0 {
		return nil, &ConfigurationFault{Channel: name, Pin: pin, Reason: "negative pin number"}
	}
	if driver == nil {
		return nil, &ConfigurationFault{Channel: name, Pin: pin, Reason: "no PWM driver"}
	}
	if err := driver.Setup(pin, PinModePWM); err != nil {
		return nil, &ConfigurationFault{Channel: name, Pin: pin, Reason: "setup failed", Err: err}
	}
	if err := driver.Start(pin, dutyMin); err != nil {
		return nil, &ConfigurationFault{Channel: name, Pin: pin, Reason: "start failed", Err: err}
	}
	return &DutyChannel{Name: name, Pin: pin, duty: dutyMin, driver: driver}, nil
}

// Duty returns the last recorded duty value.
func (c *DutyChannel) Duty() float64 {
	return c.duty
}

// set records duty (clamped to [0,100]) and writes the recorded value to
// the driver. The recorded value is kept even when the write fails.
func (c *DutyChannel) set(duty float64) error {
	c.duty = clampDuty(duty)
	if err := c.driver.SetDutyCycle(c.Pin, c.duty); err != nil {
		return &HardwareFault{Channel: c.Name, Pin: c.Pin, Duty: c.duty, Err: err}
	}
	return nil
}

// stepToward moves the channel by at most one unit toward target.
// It reports whether the channel has reached target; a channel already at
// target is not written.
func (c *DutyChannel) stepToward(target float64) (bool, error) {
	target = clampDuty(target)
	if c.duty == target {
		return true, nil
	}

	next := target
	switch {
	case target > c.duty+1:
		next = c.duty + 1
	case target < c.duty-1:
		next = c.duty - 1
	}

	if err := c.set(next); err != nil {
		return false, err
	}
	return c.duty == target, nil
}

func clampDuty(v float64) float64 {
	if math.IsNaN(v) || v < dutyMin {
		return dutyMin
	}
	if v > dutyMax {
		return dutyMax
	}
	return v
}
