package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// ButtonInput is a push button that can be waited on.
type ButtonInput interface {
	// WaitForPress blocks until the button is pressed or timeout elapses.
	WaitForPress(timeout time.Duration) (bool, error)
	Close() error
}

// Assistant is the part of the assistant runtime the button talks to.
type Assistant interface {
	StartConversation(ctx context.Context) error
}

const (
	assistantCommandTimeout = 5 * time.Second
	maxButtonReadErrors     = 10
)

// commandAssistant starts a conversation by running an external command,
// e.g. a small client of the assistant SDK.
type commandAssistant struct {
	argv   []string
	logger *slog.Logger
}

func newCommandAssistant(argv []string, logger *slog.Logger) (*commandAssistant, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("assistant start command is empty")
	}
	return &commandAssistant{argv: argv, logger: logger}, nil
}

func (a *commandAssistant) StartConversation(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, assistantCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, a.argv[0], a.argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("run %s: %w (output: %q)", a.argv[0], err, truncate(string(out), 200))
	}
	a.logger.Debug("start conversation command finished", "command", a.argv[0])
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ButtonWorker polls the trigger button and asks the assistant to start a
// conversation on every debounced press. It owns no LED state: the
// assistant answers with lifecycle events like any other turn.
type ButtonWorker struct {
	input     ButtonInput
	assistant Assistant
	shutdown  *Shutdown
	logger    *slog.Logger
	metrics   *Metrics

	pollTimeout time.Duration
	debounce    time.Duration

	now       func() time.Time
	lastPress time.Time
}

// NewButtonWorker builds a worker from the button section of the config.
func NewButtonWorker(input ButtonInput, assistant Assistant, shutdown *Shutdown, cfg ButtonConfig, logger *slog.Logger, metrics *Metrics) *ButtonWorker {
	if logger == nil {
		logger = discardLogger()
	}
	return &ButtonWorker{
		input:       input,
		assistant:   assistant,
		shutdown:    shutdown,
		logger:      logger,
		metrics:     metrics,
		pollTimeout: time.Duration(cfg.PollTimeoutMS) * time.Millisecond,
		debounce:    time.Duration(cfg.DebounceMS) * time.Millisecond,
		now:         time.Now,
	}
}

// Run polls until shutdown. Each wait is bounded by the poll timeout so the
// shutdown flag is seen promptly. It gives up after repeated read errors.
func (w *ButtonWorker) Run() error {
	w.logger.Info("button worker starting", "poll_timeout", w.pollTimeout, "debounce", w.debounce)

	consecutiveErrors := 0
	for !w.shutdown.Requested() {
		pressed, err := w.input.WaitForPress(w.pollTimeout)
		if err != nil {
			consecutiveErrors++
			w.logger.Warn("button read failed", "error", err, "consecutive", consecutiveErrors)
			if consecutiveErrors >= maxButtonReadErrors {
				return fmt.Errorf("button input: %w", err)
			}
			select {
			case <-w.shutdown.Done():
			case <-time.After(w.pollTimeout):
			}
			continue
		}
		consecutiveErrors = 0

		if pressed {
			w.press()
		}
	}

	w.logger.Info("button worker stopping")
	return nil
}

func (w *ButtonWorker) press() {
	now := w.now()
	if !w.lastPress.IsZero() && now.Sub(w.lastPress) < w.debounce {
		w.logger.Debug("button bounce ignored")
		return
	}
	w.lastPress = now
	w.metrics.buttonPress()

	w.logger.Info("starting manual turn")
	if err := w.assistant.StartConversation(w.shutdown.Context()); err != nil {
		w.logger.Warn("start conversation failed", "error", err)
	}
}
