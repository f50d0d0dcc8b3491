//go:build linux

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

const (
	sysfsPWMRoot  = "/sys/class/pwm"
	sysfsGPIORoot = "/sys/class/gpio"

	// udev needs a moment to create and chown freshly exported nodes.
	sysfsExportWait  = 50 * time.Millisecond
	sysfsExportTries = 20
)

// sysfsPWMDriver drives the channels of one pwmchip through the kernel PWM
// sysfs interface. Pins are PWM channel numbers on that chip.
//
// duty_cycle files are opened once and rewritten in place with pwrite: the
// animation writes hundreds of values per second.
type sysfsPWMDriver struct {
	chipPath string
	periodNS int64
	dutyFDs  map[int]int
}

func newSysfsPWMDriver(chip int, frequencyHz int) (*sysfsPWMDriver, error) {
	if frequencyHz <= 0 {
		return nil, fmt.Errorf("invalid PWM frequency %d Hz", frequencyHz)
	}
	chipPath := filepath.Join(sysfsPWMRoot, fmt.Sprintf("pwmchip%d", chip))
	if _, err := os.Stat(chipPath); err != nil {
		return nil, fmt.Errorf("pwm chip %d: %w", chip, err)
	}
	return &sysfsPWMDriver{
		chipPath: chipPath,
		periodNS: int64(time.Second) / int64(frequencyHz),
		dutyFDs:  make(map[int]int),
	}, nil
}

func (d *sysfsPWMDriver) channelPath(ch int, attr string) string {
	return filepath.Join(d.chipPath, fmt.Sprintf("pwm%d", ch), attr)
}

func (d *sysfsPWMDriver) Setup(ch int, mode PinMode) error {
	if mode != PinModePWM {
		return fmt.Errorf("sysfs PWM driver only sets up PWM channels, got %s", mode)
	}
	if err := sysfsExport(filepath.Join(d.chipPath, "export"), ch); err != nil {
		return err
	}
	if err := waitForPath(d.channelPath(ch, "period")); err != nil {
		return err
	}
	// duty_cycle must never exceed period, so clear it before shrinking period.
	if err := writeSysfs(d.channelPath(ch, "duty_cycle"), "0"); err != nil {
		return err
	}
	return writeSysfs(d.channelPath(ch, "period"), strconv.FormatInt(d.periodNS, 10))
}

func (d *sysfsPWMDriver) Start(ch int, initialDuty float64) error {
	fd, err := unix.Open(d.channelPath(ch, "duty_cycle"), unix.O_WRONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open pwm%d duty_cycle: %w", ch, err)
	}
	d.dutyFDs[ch] = fd

	if err := d.SetDutyCycle(ch, initialDuty); err != nil {
		return err
	}
	return writeSysfs(d.channelPath(ch, "enable"), "1")
}

func (d *sysfsPWMDriver) SetDutyCycle(ch int, duty float64) error {
	fd, ok := d.dutyFDs[ch]
	if !ok {
		return fmt.Errorf("pwm%d not started", ch)
	}
	ns := int64(clampDuty(duty) / dutyMax * float64(d.periodNS))
	if _, err := unix.Pwrite(fd, []byte(strconv.FormatInt(ns, 10)), 0); err != nil {
		return fmt.Errorf("write pwm%d duty_cycle: %w", ch, err)
	}
	return nil
}

// Close disables and unexports every channel.
func (d *sysfsPWMDriver) Close() error {
	var errs []error
	for ch, fd := range d.dutyFDs {
		if _, err := unix.Pwrite(fd, []byte("0"), 0); err != nil {
			errs = append(errs, fmt.Errorf("clear pwm%d: %w", ch, err))
		}
		if err := unix.Close(fd); err != nil {
			errs = append(errs, err)
		}
		if err := writeSysfs(d.channelPath(ch, "enable"), "0"); err != nil {
			errs = append(errs, err)
		}
		if err := writeSysfs(filepath.Join(d.chipPath, "unexport"), strconv.Itoa(ch)); err != nil {
			errs = append(errs, err)
		}
		delete(d.dutyFDs, ch)
	}
	return errors.Join(errs...)
}

// ============================================================================
// Button via sysfs GPIO edge interrupts
// ============================================================================

// sysfsButton waits for falling edges on a sysfs GPIO using epoll.
// The kernel signals edges on the value file as EPOLLPRI.
//
// sysfs cannot enable pull-ups; the pin needs an external one (or a
// device tree overlay).
type sysfsButton struct {
	gpio    int
	valueFD int
	epfd    int
	buf     []byte
	events  []unix.EpollEvent
}

func newSysfsButton(gpio int) (*sysfsButton, error) {
	if err := sysfsExport(filepath.Join(sysfsGPIORoot, "export"), gpio); err != nil {
		return nil, err
	}
	base := filepath.Join(sysfsGPIORoot, fmt.Sprintf("gpio%d", gpio))
	if err := waitForPath(filepath.Join(base, "edge")); err != nil {
		return nil, err
	}
	if err := writeSysfs(filepath.Join(base, "direction"), "in"); err != nil {
		return nil, err
	}
	if err := writeSysfs(filepath.Join(base, "edge"), "falling"); err != nil {
		return nil, err
	}

	fd, err := unix.Open(filepath.Join(base, "value"), unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open gpio%d value: %w", gpio, err)
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	event := unix.EpollEvent{
		Events: unix.EPOLLPRI | unix.EPOLLERR,
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		unix.Close(epfd)
		unix.Close(fd)
		return nil, fmt.Errorf("epoll_ctl_add gpio%d: %w", gpio, err)
	}

	b := &sysfsButton{
		gpio:    gpio,
		valueFD: fd,
		epfd:    epfd,
		buf:     make([]byte, 8),
		events:  make([]unix.EpollEvent, 1),
	}

	// The first read clears the edge that is pending right after export.
	if _, err := b.readValue(); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *sysfsButton) readValue() (byte, error) {
	if _, err := unix.Seek(b.valueFD, 0, 0); err != nil {
		return 0, fmt.Errorf("seek gpio%d value: %w", b.gpio, err)
	}
	n, err := unix.Read(b.valueFD, b.buf)
	if err != nil {
		return 0, fmt.Errorf("read gpio%d value: %w", b.gpio, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("read gpio%d value: empty", b.gpio)
	}
	return b.buf[0], nil
}

func (b *sysfsButton) WaitForPress(timeout time.Duration) (bool, error) {
	n, err := unix.EpollWait(b.epfd, b.events, int(timeout.Milliseconds()))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, nil
		}
		return false, fmt.Errorf("epoll_wait: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	v, err := b.readValue()
	if err != nil {
		return false, err
	}
	return v == '0', nil
}

func (b *sysfsButton) Close() error {
	err := errors.Join(unix.Close(b.epfd), unix.Close(b.valueFD))
	if uerr := writeSysfs(filepath.Join(sysfsGPIORoot, "unexport"), strconv.Itoa(b.gpio)); uerr != nil {
		err = errors.Join(err, uerr)
	}
	return err
}

// ============================================================================
// sysfs helpers
// ============================================================================

// sysfsExport writes n to an export file. An already exported node is fine.
func sysfsExport(exportPath string, n int) error {
	err := writeSysfs(exportPath, strconv.Itoa(n))
	if err != nil && errors.Is(err, unix.EBUSY) {
		return nil
	}
	return err
}

func writeSysfs(path, value string) error {
	if err := os.WriteFile(path, []byte(value), 0); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func waitForPath(path string) error {
	var err error
	for i := 0; i < sysfsExportTries; i++ {
		if err = unix.Access(path, unix.W_OK); err == nil {
			return nil
		}
		time.Sleep(sysfsExportWait)
	}
	return fmt.Errorf("wait for %s: %w", path, err)
}
