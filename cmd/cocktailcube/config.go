package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the cocktailcube daemon.
//
// Keep defaults and validation centralized so the rest of the code can assume
// a well-formed config.
type Config struct {
	// Device query interface
	Device DeviceConfig `yaml:"device"`

	// Poll loop and liveness
	Poll PollConfig `yaml:"poll"`

	// Control model
	Control ControlConfig `yaml:"control"`

	// State feed / snapshot HTTP server
	HTTP HTTPConfig `yaml:"http"`

	// IPC configuration (cube-ctl and scripts)
	IPC IPCConfig `yaml:"ipc"`

	// Optional hardware dial
	Input InputConfig `yaml:"input"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type DeviceConfig struct {
	URL       string `yaml:"url"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type PollConfig struct {
	IntervalMS        int `yaml:"interval_ms"`
	OnlineThresholdMS int `yaml:"online_threshold_ms"`
}

type ControlConfig struct {
	MinAngleDeg   float64 `yaml:"min_angle_deg"`
	AdjustStepDeg int     `yaml:"adjust_step_deg"`
}

type HTTPConfig struct {
	Port   int    `yaml:"port"`
	WSPath string `yaml:"ws_path"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"` // empty disables IPC
}

type InputConfig struct {
	Devices            []string `yaml:"devices,omitempty"`
	DialDegPerStep     float64  `yaml:"dial_deg_per_step"`
	VelocityWindowMS   int      `yaml:"velocity_window_ms"`
	VelocityThreshold  int      `yaml:"velocity_threshold"`
	VelocityMultiplier float64  `yaml:"velocity_multiplier"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format,omitempty"` // text (default) or json
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Device: DeviceConfig{
			URL:       "http://192.168.4.1",
			TimeoutMS: defaultDeviceTimeoutMS,
		},
		Poll: PollConfig{
			IntervalMS:        defaultPollIntervalMS,
			OnlineThresholdMS: defaultOnlineThresholdMS,
		},
		Control: ControlConfig{
			MinAngleDeg:   defaultMinAngleDeg,
			AdjustStepDeg: defaultAdjustStepDeg,
		},
		HTTP: HTTPConfig{
			Port:   8080,
			WSPath: "/ws/state",
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/cocktailcube.sock",
		},
		Input: InputConfig{
			DialDegPerStep:     defaultDialDegPerStep,
			VelocityWindowMS:   defaultDialVelocityWindowMS,
			VelocityThreshold:  defaultDialVelocityThreshold,
			VelocityMultiplier: defaultDialVelocityMultiplier,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parseConfig(b)
}

func parseConfig(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Ensure there's no trailing garbage (only whitespace/comments are allowed after the document).
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies command line overrides on top of a loaded config.
//
// Flags should pass pointers; nil means "not set on the command line".
type FlagOverrides struct {
	DeviceURL       *string
	DeviceTimeoutMS *int
	PollIntervalMS  *int
	HTTPPort        *int
	IPCSocketPath   *string
	LogLevel        *string
}

// Apply merges the overrides into cfg. If an override pointer is nil, it is ignored.
// If the pointer is non-nil, the value is applied (even if it is a "zero value").
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.DeviceURL != nil {
		cfg.Device.URL = *o.DeviceURL
	}
	if o.DeviceTimeoutMS != nil {
		cfg.Device.TimeoutMS = *o.DeviceTimeoutMS
	}
	if o.PollIntervalMS != nil {
		cfg.Poll.IntervalMS = *o.PollIntervalMS
	}
	if o.HTTPPort != nil {
		cfg.HTTP.Port = *o.HTTPPort
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Device
	if c.Device.URL == "" {
		return errors.New("device.url must not be empty")
	}
	u, err := url.Parse(c.Device.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("device.url must be an http(s) URL with a host, got %q", c.Device.URL)
	}
	if c.Device.TimeoutMS <= 0 {
		return errors.New("device.timeout_ms must be > 0")
	}

	// Poll
	if c.Poll.IntervalMS <= 0 || c.Poll.IntervalMS > 60000 {
		return errors.New("poll.interval_ms must be between 1 and 60000")
	}
	if c.Poll.OnlineThresholdMS <= 0 {
		return errors.New("poll.online_threshold_ms must be > 0")
	}
	if c.Poll.OnlineThresholdMS <= c.Poll.IntervalMS {
		return errors.New("poll.online_threshold_ms must be > poll.interval_ms")
	}

	// Control
	if c.Control.MinAngleDeg <= 0 || c.Control.MinAngleDeg >= 120 {
		return errors.New("control.min_angle_deg must be > 0 and < 120")
	}
	if c.Control.AdjustStepDeg <= 0 || c.Control.AdjustStepDeg > 90 {
		return errors.New("control.adjust_step_deg must be between 1 and 90")
	}

	// HTTP
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if !strings.HasPrefix(c.HTTP.WSPath, "/") {
		return errors.New("http.ws_path must start with /")
	}
	if c.HTTP.WSPath == "/api/state" {
		return errors.New("http.ws_path must not be /api/state")
	}

	// Input
	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}
	if c.Input.DialDegPerStep <= 0 {
		return errors.New("input.dial_deg_per_step must be > 0")
	}
	if c.Input.VelocityWindowMS < 0 {
		return errors.New("input.velocity_window_ms must be >= 0")
	}
	if c.Input.VelocityThreshold < 0 {
		return errors.New("input.velocity_threshold must be >= 0")
	}
	if c.Input.VelocityMultiplier < 1 {
		return errors.New("input.velocity_multiplier must be >= 1")
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// ToSessionConfig converts file config into the session's policy knobs.
func (c *Config) ToSessionConfig() SessionConfig {
	return SessionConfig{
		OnlineThreshold: time.Duration(c.Poll.OnlineThresholdMS) * time.Millisecond,
		AdjustStepDeg:   c.Control.AdjustStepDeg,
		Rotary: RotaryConfig{
			DegPerStep:         c.Input.DialDegPerStep,
			VelocityWindowMS:   c.Input.VelocityWindowMS,
			VelocityThreshold:  c.Input.VelocityThreshold,
			VelocityMultiplier: c.Input.VelocityMultiplier,
		},
	}
}

// PollInterval returns poll.interval_ms as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalMS) * time.Millisecond
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
