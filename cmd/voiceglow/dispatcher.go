package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ============================================================================
// Event Dispatcher - single animation authority
// ============================================================================
//
// The dispatcher is the only goroutine that touches LED state. Each loop
// iteration either handles exactly one queued lifecycle event or, when
// nothing is pending and the device is idle, writes one breathing sample.
// Events always win over ambient animation.
//
// Transitions run synchronously: a second event is not looked at until the
// fade or pulse started by the first one has finished, so animations never
// overlap.
//
// ============================================================================

// DispatcherState is the visible state of the LED state machine.
type DispatcherState int

const (
	StateIdle DispatcherState = iota
	StateBreathing
	StateListening
	StateSignaling
)

var allDispatcherStates = []DispatcherState{StateIdle, StateBreathing, StateListening, StateSignaling}

func (s DispatcherState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBreathing:
		return "breathing"
	case StateListening:
		return "listening"
	case StateSignaling:
		return "signaling"
	default:
		return fmt.Sprintf("DispatcherState(%d)", int(s))
	}
}

// StateSnapshot is what the dispatcher publishes after every handled event.
type StateSnapshot struct {
	State     string             `json:"state"`
	Ready     bool               `json:"ready"`
	Listening bool               `json:"listening"`
	Duties    map[string]float64 `json:"duties"`
	At        time.Time          `json:"at"`
}

// StatePublisher receives dispatcher snapshots. Implementations must not block.
type StatePublisher interface {
	PublishState(StateSnapshot)
}

// WakeTone plays the "I'm listening" sound. Play must return immediately.
type WakeTone interface {
	Play()
}

// DispatcherOptions holds the optional collaborators of a Dispatcher.
type DispatcherOptions struct {
	// IdlePoll bounds how long an iteration waits for an event when there
	// is no breathing to do. Zero means "do not wait".
	IdlePoll time.Duration

	Metrics   *Metrics
	WakeTone  WakeTone
	Publisher StatePublisher
}

// Dispatcher maps lifecycle events to animations.
type Dispatcher struct {
	queue    *EventQueue
	animator *Animator
	shutdown *Shutdown
	logger   *slog.Logger

	idlePoll  time.Duration
	metrics   *Metrics
	wakeTone  WakeTone
	publisher StatePublisher

	// Owned by the dispatcher goroutine.
	ready         bool
	listening     bool
	signaling     bool
	breathFaulted bool
}

// NewDispatcher wires a dispatcher. queue, animator and shutdown are required.
func NewDispatcher(queue *EventQueue, animator *Animator, shutdown *Shutdown, logger *slog.Logger, opts DispatcherOptions) *Dispatcher {
	if logger == nil {
		logger = discardLogger()
	}
	return &Dispatcher{
		queue:     queue,
		animator:  animator,
		shutdown:  shutdown,
		logger:    logger,
		idlePoll:  opts.IdlePoll,
		metrics:   opts.Metrics,
		wakeTone:  opts.WakeTone,
		publisher: opts.Publisher,
	}
}

// State returns the current state. Only meaningful on the dispatcher goroutine
// or after Run has returned.
func (d *Dispatcher) State() DispatcherState {
	switch {
	case d.signaling:
		return StateSignaling
	case d.listening:
		return StateListening
	case d.ready:
		return StateBreathing
	default:
		return StateIdle
	}
}

// Run loops until shutdown is requested. Shutdown is observed between
// iterations and, through the animator, between fade micro-steps.
func (d *Dispatcher) Run() {
	d.logger.Info("dispatcher starting", "idle_poll", d.idlePoll)
	d.publish()

	for !d.shutdown.Requested() {
		d.Tick()
	}

	d.logger.Info("dispatcher stopping", "state", d.State(), "pending_events", d.queue.Len())
}

// Tick runs one loop iteration: handle one pending event, or breathe once if
// the device is idle and ready, or wait briefly for an event.
func (d *Dispatcher) Tick() {
	if d.State() == StateBreathing {
		if qe, ok := d.queue.TryGet(); ok {
			d.handle(qe)
			return
		}
		d.breathe()
		return
	}

	if qe, ok := d.queue.GetTimeout(d.idlePoll, d.shutdown.Done()); ok {
		d.handle(qe)
	}
}

func (d *Dispatcher) handle(qe QueuedEvent) {
	typ := eventTypeName(qe.Event)
	backlog := d.queue.Len()
	d.logger.Debug("event received",
		"id", qe.ID,
		"type", typ,
		"queued_for", time.Since(qe.At),
		"backlog", backlog)
	if backlog >= queueBacklogWarnDepth {
		d.logger.Warn("event backlog growing", "backlog", backlog)
	}

	before := d.State()
	if err := d.apply(qe.Event); err != nil {
		var hw *HardwareFault
		if errors.As(err, &hw) {
			d.logger.Error("animation aborted", "event", typ, "id", qe.ID, "error", err)
		} else {
			d.logger.Error("event handling failed", "event", typ, "id", qe.ID, "error", err)
		}
	}

	if err := d.queue.Ack(); err != nil {
		d.logger.Warn("event ack failed", "id", qe.ID, "error", err)
	}

	d.metrics.event(typ)
	d.metrics.setQueueDepth(d.queue.Len())

	if after := d.State(); after != before {
		d.logger.Info("state changed", "from", before, "to", after, "event", typ)
	}
	d.publish()
}

// apply runs the transition for ev. State flags are updated before the
// animation runs, so a hardware fault still lands in the nominal next state.
func (d *Dispatcher) apply(ev LifecycleEvent) error {
	switch e := ev.(type) {
	case ServiceReady:
		if !d.ready {
			d.ready = true
			d.logger.Info("assistant service ready")
		}
		return nil

	case TurnStarted:
		d.listening = true
		err := d.animator.FadeTo(map[string]float64{ChannelBlue: dutyMax}, turnStartedStepDelay)
		if d.wakeTone != nil && !d.shutdown.Requested() {
			d.wakeTone.Play()
		}
		return err

	case TurnFinished:
		if e.WithFollowOn {
			// Same conversation continues; keep the listening light as is.
			return nil
		}
		d.listening = false
		err := d.animator.FadeTo(nil, turnFinishedStepDelay)
		d.animator.Clock().ResetToTrough()
		return err

	case TurnTimeout:
		d.listening = false
		d.signaling = true
		d.publish()
		defer func() { d.signaling = false }()

		err := d.animator.FadeTo(nil, turnTimeoutStepDelay)
		if err == nil {
			err = d.animator.Pulse(ChannelRed, timeoutPulseCount, timeoutPulseStepDelay)
		}
		d.animator.Clock().ResetToTrough()
		return err

	default:
		d.logger.Debug("ignoring event", "type", eventTypeName(ev))
		return nil
	}
}

func (d *Dispatcher) breathe() {
	err := d.animator.BreatheStep()
	switch {
	case err != nil && !d.breathFaulted:
		d.breathFaulted = true
		d.logger.Error("breathing write failed", "error", err)
	case err == nil && d.breathFaulted:
		d.breathFaulted = false
		d.logger.Info("breathing writes recovered")
	}
}

// Snapshot returns the current state for publishing.
func (d *Dispatcher) Snapshot() StateSnapshot {
	return StateSnapshot{
		State:     d.State().String(),
		Ready:     d.ready,
		Listening: d.listening,
		Duties:    d.animator.Duties(),
		At:        time.Now(),
	}
}

func (d *Dispatcher) publish() {
	d.metrics.setState(d.State())
	if d.publisher != nil {
		d.publisher.PublishState(d.Snapshot())
	}
}
