package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

const version = "0.3.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		logLevel   string
		driver     string
		ipcSocket  string
		httpListen string
		button     bool
	)

	cmd := &cobra.Command{
		Use:   "voiceglow",
		Short: "LED feedback daemon for a voice assistant",
		Long: `voiceglow drives an RGB LED from voice assistant lifecycle events.

Events arrive as JSON lines on a unix socket (see "voiceglow emit"). While the
assistant is ready and idle the LED breathes; a started turn fades to blue, a
finished turn fades out and a timed-out turn blinks red twice.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var o FlagOverrides
			flags := cmd.Flags()
			if flags.Changed("log-level") {
				o.LogLevel = &logLevel
			}
			if flags.Changed("driver") {
				o.Driver = &driver
			}
			if flags.Changed("ipc-socket") {
				o.IPCSocketPath = &ipcSocket
			}
			if flags.Changed("http-listen") {
				o.HTTPListen = &httpListen
			}
			if flags.Changed("button") {
				o.ButtonEnabled = &button
			}

			cfg, err := loadConfig(configPath, o)
			if err != nil {
				return err
			}
			return runDaemon(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to YAML config file (defaults are used when empty)")
	flags.StringVar(&logLevel, "log-level", "info", "Log level: error, warn, info, debug")
	flags.StringVar(&driver, "driver", driverPeriph, "LED driver: periph, sysfs, log")
	flags.StringVar(&ipcSocket, "ipc-socket", defaultIPCSocket, "Unix domain socket path for lifecycle events")
	flags.StringVar(&httpListen, "http-listen", "", "Serve /metrics and /ws/state on this address (empty disables)")
	flags.BoolVar(&button, "button", false, "Poll the trigger button")

	cmd.AddCommand(newEmitCommand(), newWatchCommand(), newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "voiceglow v%s\n", version)
		},
	}
}

// loadConfig layers defaults, the optional config file and flag overrides,
// then validates the result.
func loadConfig(path string, o FlagOverrides) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		cfg, err = LoadConfigFile(ExpandPath(path))
		if err != nil {
			return Config{}, err
		}
	}
	o.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// runDaemon sets up the hardware and runs every worker until SIGINT/SIGTERM
// or until a worker fails. The LEDs are switched off before returning.
func runDaemon(parent context.Context, cfg Config) error {
	if parent == nil {
		parent = context.Background()
	}

	level, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger := setupLogger(level)

	logger.Debug("starting voiceglow", "version", version)
	logger.Debug("configuration",
		"driver", cfg.LEDs.Driver,
		"frequency_hz", cfg.LEDs.FrequencyHz,
		"channels", cfg.LEDs.Channels,
		"idle_poll", cfg.IdlePoll(),
		"button_enabled", cfg.Button.Enabled,
		"wake_tone_enabled", cfg.WakeTone.Enabled,
		"ipc_socket", cfg.IPC.SocketPath,
		"http_enabled", cfg.HTTP.Enabled,
		"http_listen", cfg.HTTP.Listen)

	pwm, err := newPWMDriver(cfg.LEDs, logger)
	if err != nil {
		return fmt.Errorf("LED driver %s: %w", cfg.LEDs.Driver, err)
	}
	defer func() {
		if err := pwm.Close(); err != nil {
			logger.Warn("LED driver close failed", "error", err)
		}
	}()

	channels := make([]*DutyChannel, 0, len(cfg.LEDs.Channels))
	for _, cc := range cfg.LEDs.Channels {
		ch, err := NewDutyChannel(cc.Name, cc.Pin, pwm)
		if err != nil {
			return err
		}
		channels = append(channels, ch)
	}

	ctx, stop := signal.NotifyContext(parent, unix.SIGINT, unix.SIGTERM)
	defer stop()
	shutdown := NewShutdown(ctx)

	metrics := NewMetrics()
	animator, err := NewAnimator(channels, shutdown, metrics)
	if err != nil {
		return err
	}
	queue := NewEventQueue()

	opts := DispatcherOptions{
		IdlePoll: cfg.IdlePoll(),
		Metrics:  metrics,
	}

	var hub *Hub
	if cfg.HTTP.Enabled {
		hub = NewHub(logger, HubConfig{})
		opts.Publisher = hub
	}

	if cfg.WakeTone.Enabled {
		tone, err := newCommandWakeTone(cfg.WakeTone.Player, ExpandPath(cfg.WakeTone.File), logger)
		if err != nil {
			// Feedback still works without sound.
			logger.Warn("wake tone disabled", "error", err)
		} else {
			opts.WakeTone = tone
		}
	}

	var buttonWorker *ButtonWorker
	if cfg.Button.Enabled {
		input, err := newButtonInput(cfg.LEDs.Driver, cfg.Button)
		if err != nil {
			return fmt.Errorf("button input: %w", err)
		}
		defer input.Close()

		assistant, err := newCommandAssistant(cfg.Button.StartCommand, logger)
		if err != nil {
			return err
		}
		buttonWorker = NewButtonWorker(input, assistant, shutdown, cfg.Button, logger, metrics)
	}

	dispatcher := NewDispatcher(queue, animator, shutdown, logger, opts)

	var g errgroup.Group
	run := func(name string, fn func() error) {
		g.Go(func() error {
			if err := fn(); err != nil {
				logger.Error("worker failed", "worker", name, "error", err)
				shutdown.Trigger()
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}

	run("dispatcher", func() error {
		dispatcher.Run()
		return nil
	})
	run("ipc", func() error {
		return runIPCServer(shutdown.Context(), cfg.IPC, queue, logger)
	})
	if hub != nil {
		run("ws-hub", func() error {
			hub.Run(shutdown.Context())
			return nil
		})
		run("http", func() error {
			return runHTTPServer(shutdown.Context(), cfg.HTTP.Listen, newStatusMux(metrics, hub), logger)
		})
	}
	if buttonWorker != nil {
		run("button", buttonWorker.Run)
	}

	listenInfo := []any{"driver", cfg.LEDs.Driver, "ipc", cfg.IPC.SocketPath}
	if cfg.HTTP.Enabled {
		listenInfo = append(listenInfo, "http", cfg.HTTP.Listen)
	}
	if cfg.Button.Enabled {
		listenInfo = append(listenInfo, "button_pin", cfg.Button.Pin)
	}
	logger.Info("listening", listenInfo...)

	<-shutdown.Done()
	if ctx.Err() != nil && parent.Err() == nil {
		logger.Info("shutdown signal received")
	}

	werr := g.Wait()

	if err := animator.Blackout(); err != nil {
		var hw *HardwareFault
		if errors.As(err, &hw) {
			logger.Error("failed to switch LEDs off", "channel", hw.Channel, "error", err)
		} else {
			logger.Error("failed to switch LEDs off", "error", err)
		}
	}

	if unfinished := queue.Unfinished(); unfinished > 0 {
		logger.Debug("events left unhandled", "count", unfinished)
	}
	logger.Info("stopped")
	return werr
}
