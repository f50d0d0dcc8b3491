package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync/atomic"
)

// commandWakeTone plays a sound file through an external player command
// (argv, with the file appended), such as "aplay -q". Play never blocks the
// dispatcher; a tone that is still playing is not restarted.
type commandWakeTone struct {
	player []string
	file   string
	logger *slog.Logger

	playing atomic.Bool
	// start is swapped out in tests.
	start func(cmd *exec.Cmd) error
}

func newCommandWakeTone(player []string, file string, logger *slog.Logger) (*commandWakeTone, error) {
	if len(player) == 0 {
		return nil, fmt.Errorf("wake tone player is empty")
	}
	path, err := exec.LookPath(player[0])
	if err != nil {
		return nil, fmt.Errorf("wake tone player %q: %w", player[0], err)
	}
	if _, err := os.Stat(file); err != nil {
		return nil, fmt.Errorf("wake tone file: %w", err)
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &commandWakeTone{
		player: append([]string{path}, player[1:]...),
		file:   file,
		logger: logger,
		start:  func(cmd *exec.Cmd) error { return cmd.Start() },
	}, nil
}

func (t *commandWakeTone) Play() {
	if !t.playing.CompareAndSwap(false, true) {
		return
	}

	args := append(append([]string{}, t.player[1:]...), t.file)
	cmd := exec.Command(t.player[0], args...)
	if err := t.start(cmd); err != nil {
		t.playing.Store(false)
		t.logger.Warn("wake tone failed to start", "player", t.player[0], "error", err)
		return
	}

	go func() {
		defer t.playing.Store(false)
		if cmd.Process == nil {
			return
		}
		if err := cmd.Wait(); err != nil {
			t.logger.Warn("wake tone player exited with error", "error", err)
		}
	}()
}
