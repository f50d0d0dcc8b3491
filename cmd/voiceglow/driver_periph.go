package main

import (
	"fmt"
	"math"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// periphDriver drives LED pins through periph.io. Pins are addressed by their
// BCM number, e.g. 18 → "GPIO18".
type periphDriver struct {
	freq physic.Frequency
	pins map[int]gpio.PinIO
}

func newPeriphDriver(frequencyHz int) (*periphDriver, error) {
	if frequencyHz <= 0 {
		return nil, fmt.Errorf("invalid PWM frequency %d Hz", frequencyHz)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return &periphDriver{
		freq: physic.Frequency(frequencyHz) * physic.Hertz,
		pins: make(map[int]gpio.PinIO),
	}, nil
}

func lookupPeriphPin(pin int) (gpio.PinIO, error) {
	name := fmt.Sprintf("GPIO%d", pin)
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("no such pin %s", name)
	}
	return p, nil
}

func (d *periphDriver) Setup(pin int, mode PinMode) error {
	if mode != PinModePWM {
		return fmt.Errorf("periph LED driver only sets up PWM pins, got %s", mode)
	}
	p, err := lookupPeriphPin(pin)
	if err != nil {
		return err
	}
	d.pins[pin] = p
	return nil
}

func (d *periphDriver) Start(pin int, initialDuty float64) error {
	return d.SetDutyCycle(pin, initialDuty)
}

func (d *periphDriver) SetDutyCycle(pin int, duty float64) error {
	p, ok := d.pins[pin]
	if !ok {
		return fmt.Errorf("pin %d not set up", pin)
	}
	return p.PWM(periphDuty(duty), d.freq)
}

// Close stops PWM and leaves every pin driven low.
func (d *periphDriver) Close() error {
	var first error
	for pin, p := range d.pins {
		if err := p.Halt(); err != nil && first == nil {
			first = fmt.Errorf("halt GPIO%d: %w", pin, err)
		}
		if err := p.Out(gpio.Low); err != nil && first == nil {
			first = fmt.Errorf("drive GPIO%d low: %w", pin, err)
		}
	}
	return first
}

// periphDuty converts a [0,100] percentage to periph's fixed-point duty.
func periphDuty(percent float64) gpio.Duty {
	return gpio.Duty(math.Round(clampDuty(percent) / dutyMax * float64(gpio.DutyMax)))
}

// periphButton is an active-low push button with the internal pull-up on.
type periphButton struct {
	pin gpio.PinIO
}

func newPeriphButton(pin int) (*periphButton, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	p, err := lookupPeriphPin(pin)
	if err != nil {
		return nil, err
	}
	if err := p.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("configure GPIO%d as input: %w", pin, err)
	}
	return &periphButton{pin: p}, nil
}

func (b *periphButton) WaitForPress(timeout time.Duration) (bool, error) {
	if !b.pin.WaitForEdge(timeout) {
		return false, nil
	}
	return b.pin.Read() == gpio.Low, nil
}

func (b *periphButton) Close() error {
	return b.pin.Halt()
}
