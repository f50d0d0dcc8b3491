package main

import (
	"fmt"
	"time"
)

// Animator owns the LED channels and the breathing clock and runs the
// paced duty-cycle sequences.
//
// Every operation is a loop of small absolute writes separated by a fixed
// delay. The shutdown flag is checked before each micro-step, so a stop
// request interrupts a fade after at most one step delay. Interruption is
// not an error.
//
// Not safe for concurrent use: the dispatcher goroutine is the only caller.
type Animator struct {
	channels []*DutyChannel
	byName   map[string]*DutyChannel
	clock    *AnimationClock

	shutdown *Shutdown
	metrics  *Metrics

	// sleep paces micro-steps; tests replace it.
	sleep func(time.Duration)
}

// NewAnimator builds an animator over channels. Channel names must be unique.
func NewAnimator(channels []*DutyChannel, shutdown *Shutdown, metrics *Metrics) (*Animator, error) {
	if len(channels) == 0 {
		return nil, &ConfigurationFault{Reason: "no LED channels configured"}
	}
	byName := make(map[string]*DutyChannel, len(channels))
	for _, ch := range channels {
		if ch == nil {
			return nil, &ConfigurationFault{Reason: "nil LED channel"}
		}
		if _, dup := byName[ch.Name]; dup {
			return nil, &ConfigurationFault{Channel: ch.Name, Pin: ch.Pin, Reason: "duplicate channel name"}
		}
		byName[ch.Name] = ch
	}

	return &Animator{
		channels: channels,
		byName:   byName,
		clock:    NewAnimationClock(breathingIncrement),
		shutdown: shutdown,
		metrics:  metrics,
		sleep:    time.Sleep,
	}, nil
}

// Channel returns the channel named name, or nil.
func (a *Animator) Channel(name string) *DutyChannel {
	return a.byName[name]
}

// Clock exposes the breathing clock.
func (a *Animator) Clock() *AnimationClock {
	return a.clock
}

// Duties returns the recorded duty of every channel, keyed by name.
func (a *Animator) Duties() map[string]float64 {
	out := make(map[string]float64, len(a.channels))
	for _, ch := range a.channels {
		out[ch.Name] = ch.Duty()
	}
	return out
}

func (a *Animator) stopping() bool {
	return a.shutdown != nil && a.shutdown.Requested()
}

// FadeTo crossfades every channel toward its target, one duty unit per
// channel per micro-step, sleeping stepDelay between micro-steps. Channels
// missing from targets fade to 0. The fade lasts about
// stepDelay × max|current − target|.
func (a *Animator) FadeTo(targets map[string]float64, stepDelay time.Duration) error {
	for name := range targets {
		if _, ok := a.byName[name]; !ok {
			return fmt.Errorf("fade: unknown channel %q", name)
		}
	}

	for {
		if a.stopping() {
			return nil
		}

		done := true
		for _, ch := range a.channels {
			before := ch.Duty()
			reached, err := ch.stepToward(targets[ch.Name])
			if ch.Duty() != before {
				a.metrics.setDuty(ch.Name, ch.Duty())
			}
			if err != nil {
				a.metrics.hardwareFault(ch.Name)
				return err
			}
			if !reached {
				done = false
			}
		}
		if done {
			return nil
		}
		a.sleep(stepDelay)
	}
}

// Pulse blinks channel count times: full on, then off again.
func (a *Animator) Pulse(channel string, count int, stepDelay time.Duration) error {
	if _, ok := a.byName[channel]; !ok {
		return fmt.Errorf("pulse: unknown channel %q", channel)
	}
	for i := 0; i < count; i++ {
		if a.stopping() {
			return nil
		}
		if err := a.FadeTo(map[string]float64{channel: dutyMax}, stepDelay); err != nil {
			return err
		}
		if err := a.FadeTo(map[string]float64{channel: dutyMin}, stepDelay); err != nil {
			return err
		}
	}
	return nil
}

// BreatheStep writes one sample of the breathing waveform to every channel,
// advances the clock and waits for the breathing cadence.
//
// The caller must only breathe while the service is ready and no turn is
// active.
func (a *Animator) BreatheStep() error {
	duty := breathingDuty(a.clock.Phase())
	a.clock.Advance()
	a.metrics.breatheStep()

	var fault error
	for _, ch := range a.channels {
		err := ch.set(duty)
		a.metrics.setDuty(ch.Name, ch.Duty())
		if err != nil {
			a.metrics.hardwareFault(ch.Name)
			fault = err
			break
		}
	}

	a.sleep(breathingStepDelay)
	return fault
}

// Blackout sets every channel to 0 immediately. Used on exit so the LEDs do
// not stay lit after the process is gone.
func (a *Animator) Blackout() error {
	var first error
	for _, ch := range a.channels {
		if err := ch.set(dutyMin); err != nil && first == nil {
			first = err
		}
		a.metrics.setDuty(ch.Name, ch.Duty())
	}
	return first
}
