package main

import (
	"fmt"
	"log/slog"
	"sync"
)

// Supported hardware backends.
const (
	driverPeriph = "periph" // Raspberry Pi and friends through periph.io
	driverSysfs  = "sysfs"  // Linux /sys/class/pwm and /sys/class/gpio
	driverLog    = "log"    // no hardware; writes are logged
)

// newPWMDriver builds the LED backend selected in cfg.
func newPWMDriver(cfg LEDConfig, logger *slog.Logger) (PWMDriver, error) {
	switch cfg.Driver {
	case driverPeriph:
		d, err := newPeriphDriver(cfg.FrequencyHz)
		if err != nil {
			return nil, err
		}
		return d, nil
	case driverSysfs:
		d, err := newSysfsPWMDriver(cfg.PWMChip, cfg.FrequencyHz)
		if err != nil {
			return nil, err
		}
		return d, nil
	case driverLog:
		return newLogDriver(logger), nil
	default:
		return nil, fmt.Errorf("unknown LED driver %q", cfg.Driver)
	}
}

// newButtonInput builds the trigger button input for the selected backend.
func newButtonInput(driver string, cfg ButtonConfig) (ButtonInput, error) {
	switch driver {
	case driverPeriph:
		b, err := newPeriphButton(cfg.Pin)
		if err != nil {
			return nil, err
		}
		return b, nil
	case driverSysfs:
		b, err := newSysfsButton(cfg.Pin)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("button input is not supported by driver %q", driver)
	}
}

// logDriver stands in for real hardware on development machines.
type logDriver struct {
	logger *slog.Logger

	mu    sync.Mutex
	duty  map[int]float64
	modes map[int]PinMode
}

func newLogDriver(logger *slog.Logger) *logDriver {
	if logger == nil {
		logger = discardLogger()
	}
	return &logDriver{
		logger: logger,
		duty:   make(map[int]float64),
		modes:  make(map[int]PinMode),
	}
}

func (d *logDriver) Setup(pin int, mode PinMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.modes[pin]; ok && prev != mode {
		return fmt.Errorf("pin %d already set up as %s", pin, prev)
	}
	d.modes[pin] = mode
	d.logger.Info("pin setup", "pin", pin, "mode", mode)
	return nil
}

func (d *logDriver) Start(pin int, initialDuty float64) error {
	d.logger.Info("pwm start", "pin", pin, "duty", initialDuty)
	return d.SetDutyCycle(pin, initialDuty)
}

func (d *logDriver) SetDutyCycle(pin int, duty float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	mode, ok := d.modes[pin]
	if !ok {
		return fmt.Errorf("pin %d not set up", pin)
	}
	if mode != PinModePWM {
		return fmt.Errorf("pin %d is not a PWM output", pin)
	}
	d.duty[pin] = duty
	d.logger.Debug("pwm duty", "pin", pin, "duty", duty)
	return nil
}

func (d *logDriver) Close() error {
	d.logger.Info("pwm driver closed")
	return nil
}
