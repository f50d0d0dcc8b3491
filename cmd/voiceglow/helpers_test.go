package main

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testPinRed   = 18
	testPinGreen = 13
	testPinBlue  = 12
)

var errTestWrite = errors.New("i2c bus gone")

type dutyWrite struct {
	Pin  int
	Duty float64
}

// recordingDriver is a PWMDriver that remembers every call.
type recordingDriver struct {
	mu sync.Mutex

	modes   map[int]PinMode
	started map[int]float64
	writes  []dutyWrite
	closed  bool

	setupErr  error
	failWrite func(pin int, duty float64) error
}

func newRecordingDriver() *recordingDriver {
	return &recordingDriver{
		modes:   make(map[int]PinMode),
		started: make(map[int]float64),
	}
}

func (d *recordingDriver) Setup(pin int, mode PinMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.setupErr != nil {
		return d.setupErr
	}
	d.modes[pin] = mode
	return nil
}

func (d *recordingDriver) Start(pin int, initialDuty float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started[pin] = initialDuty
	return nil
}

func (d *recordingDriver) SetDutyCycle(pin int, duty float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWrite != nil {
		if err := d.failWrite(pin, duty); err != nil {
			return err
		}
	}
	d.writes = append(d.writes, dutyWrite{Pin: pin, Duty: duty})
	return nil
}

func (d *recordingDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *recordingDriver) allWrites() []dutyWrite {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dutyWrite(nil), d.writes...)
}

func (d *recordingDriver) writesFor(pin int) []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []float64
	for _, w := range d.writes {
		if w.Pin == pin {
			out = append(out, w.Duty)
		}
	}
	return out
}

func (d *recordingDriver) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes = nil
}

func (d *recordingDriver) setFailWrite(fn func(pin int, duty float64) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failWrite = fn
}

// newTestChannels sets up red, green and blue on drv.
func newTestChannels(t *testing.T, drv PWMDriver) []*DutyChannel {
	t.Helper()
	var channels []*DutyChannel
	for _, cc := range []ChannelConfig{
		{Name: ChannelRed, Pin: testPinRed},
		{Name: ChannelGreen, Pin: testPinGreen},
		{Name: ChannelBlue, Pin: testPinBlue},
	} {
		ch, err := NewDutyChannel(cc.Name, cc.Pin, drv)
		require.NoError(t, err)
		channels = append(channels, ch)
	}
	return channels
}

// sleepRecorder replaces the animator's sleep so tests run instantly.
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
	hook   func(n int)
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	n := len(s.sleeps)
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}
}

func (s *sleepRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sleeps)
}

func (s *sleepRecorder) total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum time.Duration
	for _, d := range s.sleeps {
		sum += d
	}
	return sum
}

func (s *sleepRecorder) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = nil
}

// newTestAnimator returns an animator over red/green/blue whose sleeps are
// recorded instead of performed.
func newTestAnimator(t *testing.T, drv *recordingDriver, shutdown *Shutdown) (*Animator, *sleepRecorder) {
	t.Helper()
	a, err := NewAnimator(newTestChannels(t, drv), shutdown, nil)
	require.NoError(t, err)
	rec := &sleepRecorder{}
	a.sleep = rec.sleep
	drv.reset()
	return a, rec
}

// waitUntil polls cond until it returns true or timeout elapses.
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func assertDutiesInRange(t *testing.T, writes []dutyWrite) {
	t.Helper()
	for i, w := range writes {
		if w.Duty < dutyMin || w.Duty > dutyMax {
			t.Fatalf("write %d to pin %d out of range: %v", i, w.Pin, w.Duty)
		}
	}
}
