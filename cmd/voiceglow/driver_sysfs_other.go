//go:build !linux

package main

import (
	"errors"
	"time"
)

var errSysfsUnsupported = errors.New("sysfs driver is only available on linux")

type sysfsPWMDriver struct{}

func newSysfsPWMDriver(chip int, frequencyHz int) (*sysfsPWMDriver, error) {
	return nil, errSysfsUnsupported
}

func (*sysfsPWMDriver) Setup(int, PinMode) error        { return errSysfsUnsupported }
func (*sysfsPWMDriver) Start(int, float64) error        { return errSysfsUnsupported }
func (*sysfsPWMDriver) SetDutyCycle(int, float64) error { return errSysfsUnsupported }
func (*sysfsPWMDriver) Close() error                    { return nil }

type sysfsButton struct{}

func newSysfsButton(gpio int) (*sysfsButton, error) {
	return nil, errSysfsUnsupported
}

func (*sysfsButton) WaitForPress(time.Duration) (bool, error) { return false, errSysfsUnsupported }
func (*sysfsButton) Close() error                             { return nil }
