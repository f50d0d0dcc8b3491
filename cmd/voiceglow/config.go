package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the voiceglow daemon.
//
// Defaults, file values and flag overrides are merged in that order and then
// validated once, so the rest of the code can assume a well-formed config.
type Config struct {
	LEDs      LEDConfig       `yaml:"leds"`
	Animation AnimationConfig `yaml:"animation"`
	Button    ButtonConfig    `yaml:"button"`
	WakeTone  WakeToneConfig  `yaml:"wake_tone"`
	IPC       IPCConfig       `yaml:"ipc"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type LEDConfig struct {
	Driver      string          `yaml:"driver"` // periph | sysfs | log
	FrequencyHz int             `yaml:"frequency_hz"`
	PWMChip     int             `yaml:"pwm_chip,omitempty"` // sysfs only
	Channels    []ChannelConfig `yaml:"channels"`
}

// ChannelConfig maps a color line to a pin: a BCM GPIO number for periph,
// a PWM channel of pwm_chip for sysfs.
type ChannelConfig struct {
	Name string `yaml:"name"`
	Pin  int    `yaml:"pin"`
}

type AnimationConfig struct {
	IdlePollMS int `yaml:"idle_poll_ms"`
}

type ButtonConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Pin           int      `yaml:"pin"`
	DebounceMS    int      `yaml:"debounce_ms"`
	PollTimeoutMS int      `yaml:"poll_timeout_ms"`
	StartCommand  []string `yaml:"start_command"`
}

type WakeToneConfig struct {
	Enabled bool     `yaml:"enabled"`
	File    string   `yaml:"file"`
	Player  []string `yaml:"player"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`

	// SocketGroup, when set, owns the socket so its members may connect.
	SocketGroup string `yaml:"socket_group"`
}

// HTTPConfig controls the read-only status server (/metrics, /ws/state).
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults matching the
// reference board wiring (red 18, green 13, blue 12, button 16).
func DefaultConfig() Config {
	return Config{
		LEDs: LEDConfig{
			Driver:      driverPeriph,
			FrequencyHz: defaultPWMFrequencyHz,
			Channels: []ChannelConfig{
				{Name: ChannelRed, Pin: 18},
				{Name: ChannelGreen, Pin: 13},
				{Name: ChannelBlue, Pin: 12},
			},
		},
		Animation: AnimationConfig{
			IdlePollMS: defaultIdlePollMS,
		},
		Button: ButtonConfig{
			Enabled:       false,
			Pin:           defaultButtonPin,
			DebounceMS:    defaultButtonDebounce,
			PollTimeoutMS: defaultButtonTimeoutMS,
		},
		WakeTone: WakeToneConfig{
			Enabled: false,
			File:    defaultWakeToneFile,
			Player:  []string{"aplay", "-q"},
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocket,
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Listen:  defaultHTTPListen,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of the defaults.
//
// Unknown fields are rejected (helps catch typos) and so is a second YAML
// document in the same file.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// A yaml.Node accepts any document, so KnownFields cannot mask a second one.
	var extra yaml.Node
	switch err := dec.Decode(&extra); {
	case err == nil:
		return Config{}, errors.New("decode config yaml: unexpected trailing document")
	case !errors.Is(err, io.EOF):
		return Config{}, fmt.Errorf("decode config yaml: trailing data: %w", err)
	}

	return cfg, nil
}

// FlagOverrides carries command-line values that take precedence over the
// config file. A nil pointer means "not set on the command line".
type FlagOverrides struct {
	Driver        *string
	IPCSocketPath *string
	HTTPListen    *string
	ButtonEnabled *bool
	LogLevel      *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Driver != nil {
		cfg.LEDs.Driver = *o.Driver
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPListen != nil {
		cfg.HTTP.Listen = *o.HTTPListen
		cfg.HTTP.Enabled = *o.HTTPListen != ""
	}
	if o.ButtonEnabled != nil {
		cfg.Button.Enabled = *o.ButtonEnabled
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Channel problems are reported as *ConfigurationFault.
func (c *Config) Validate() error {
	switch c.LEDs.Driver {
	case driverPeriph, driverSysfs, driverLog:
	default:
		return fmt.Errorf("leds.driver must be one of %q, %q, %q", driverPeriph, driverSysfs, driverLog)
	}
	if c.LEDs.FrequencyHz <= 0 || c.LEDs.FrequencyHz > 100000 {
		return errors.New("leds.frequency_hz must be between 1 and 100000")
	}
	if c.LEDs.PWMChip < 0 {
		return errors.New("leds.pwm_chip must be >= 0")
	}
	if err := validateChannels(c.LEDs.Channels); err != nil {
		return err
	}

	// Zero would turn the idle wait into a busy loop.
	if c.Animation.IdlePollMS < 1 || c.Animation.IdlePollMS > 1000 {
		return errors.New("animation.idle_poll_ms must be between 1 and 1000")
	}

	if c.Button.Enabled {
		if c.LEDs.Driver == driverLog {
			return fmt.Errorf("button.enabled requires leds.driver %q or %q", driverPeriph, driverSysfs)
		}
		if c.Button.Pin < 0 {
			return errors.New("button.pin must be >= 0")
		}
		for _, ch := range c.LEDs.Channels {
			if c.LEDs.Driver == driverPeriph && ch.Pin == c.Button.Pin {
				return &ConfigurationFault{Channel: ch.Name, Pin: ch.Pin, Reason: "pin is also used by the button"}
			}
		}
		if c.Button.DebounceMS < 0 {
			return errors.New("button.debounce_ms must be >= 0")
		}
		if c.Button.PollTimeoutMS <= 0 {
			return errors.New("button.poll_timeout_ms must be > 0")
		}
		if len(c.Button.StartCommand) == 0 || c.Button.StartCommand[0] == "" {
			return errors.New("button.enabled is true but button.start_command is empty")
		}
	}

	if c.WakeTone.Enabled {
		if c.WakeTone.File == "" {
			return errors.New("wake_tone.enabled is true but wake_tone.file is empty")
		}
		if len(c.WakeTone.Player) == 0 || c.WakeTone.Player[0] == "" {
			return errors.New("wake_tone.enabled is true but wake_tone.player is empty")
		}
	}

	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.HTTP.Enabled && c.HTTP.Listen == "" {
		return errors.New("http.enabled is true but http.listen is empty")
	}

	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// validateChannels requires exactly the red, green and blue lines, each on
// its own pin.
func validateChannels(channels []ChannelConfig) error {
	required := map[string]bool{ChannelRed: false, ChannelGreen: false, ChannelBlue: false}
	pins := make(map[int]string, len(channels))

	for _, ch := range channels {
		seen, known := required[ch.Name]
		if !known {
			return &ConfigurationFault{Channel: ch.Name, Pin: ch.Pin, Reason: "unknown channel name (want red, green or blue)"}
		}
		if seen {
			return &ConfigurationFault{Channel: ch.Name, Pin: ch.Pin, Reason: "channel configured twice"}
		}
		required[ch.Name] = true

		if ch.Pin < 0 {
			return &ConfigurationFault{Channel: ch.Name, Pin: ch.Pin, Reason: "negative pin number"}
		}
		if other, dup := pins[ch.Pin]; dup {
			return &ConfigurationFault{Channel: ch.Name, Pin: ch.Pin, Reason: fmt.Sprintf("pin already used by %q", other)}
		}
		pins[ch.Pin] = ch.Name
	}

	for _, name := range []string{ChannelRed, ChannelGreen, ChannelBlue} {
		if !required[name] {
			return &ConfigurationFault{Channel: name, Pin: -1, Reason: "channel missing from leds.channels"}
		}
	}
	return nil
}

// IdlePoll returns the idle wait as a duration.
func (c *Config) IdlePoll() time.Duration {
	return time.Duration(c.Animation.IdlePollMS) * time.Millisecond
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
