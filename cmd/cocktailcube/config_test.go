package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.PollInterval() != 500*time.Millisecond {
		t.Errorf("poll interval = %v, want 500ms", cfg.PollInterval())
	}
	sc := cfg.ToSessionConfig()
	if sc.OnlineThreshold != 1500*time.Millisecond {
		t.Errorf("online threshold = %v, want 1.5s", sc.OnlineThreshold)
	}
	if sc.Rotary != defaultRotaryConfig() {
		t.Errorf("rotary config = %+v, want defaults", sc.Rotary)
	}
}

func TestParseConfig_OverlaysDefaults(t *testing.T) {
	cfg, err := parseConfig([]byte(`
device:
  url: http://cube.local
poll:
  interval_ms: 250
input:
  devices: [/dev/input/event3]
logging:
  format: json
`))
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if cfg.Device.URL != "http://cube.local" || cfg.Poll.IntervalMS != 250 {
		t.Errorf("values not applied: %+v", cfg)
	}
	// Untouched keys keep their defaults.
	if cfg.Device.TimeoutMS != defaultDeviceTimeoutMS || cfg.Poll.OnlineThresholdMS != defaultOnlineThresholdMS {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if len(cfg.Input.Devices) != 1 || cfg.Logging.Format != "json" {
		t.Errorf("input/logging = %+v %+v", cfg.Input, cfg.Logging)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParseConfig_Rejects(t *testing.T) {
	tests := map[string]string{
		"unknown field":     "device:\n  adress: http://x\n",
		"trailing document": "poll:\n  interval_ms: 500\n---\npoll:\n  interval_ms: 100\n",
		"wrong type":        "http:\n  port: eighty\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := parseConfig([]byte(doc)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestConfig_ValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		errPart string
	}{
		{"no scheme", func(c *Config) { c.Device.URL = "192.168.4.1" }, "device.url"},
		{"timeout", func(c *Config) { c.Device.TimeoutMS = 0 }, "timeout_ms"},
		{"interval", func(c *Config) { c.Poll.IntervalMS = 0 }, "interval_ms"},
		{"threshold below interval", func(c *Config) { c.Poll.OnlineThresholdMS = 400 }, "online_threshold_ms"},
		{"min angle", func(c *Config) { c.Control.MinAngleDeg = 120 }, "min_angle_deg"},
		{"adjust step", func(c *Config) { c.Control.AdjustStepDeg = 0 }, "adjust_step_deg"},
		{"port", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"ws path", func(c *Config) { c.HTTP.WSPath = "ws" }, "ws_path"},
		{"ws path clash", func(c *Config) { c.HTTP.WSPath = "/api/state" }, "ws_path"},
		{"empty device", func(c *Config) { c.Input.Devices = []string{""} }, "input.devices[0]"},
		{"multiplier", func(c *Config) { c.Input.VelocityMultiplier = 0.5 }, "velocity_multiplier"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.errPart) {
				t.Errorf("error %q should mention %q", err, tt.errPart)
			}
		})
	}
}

func TestFlagOverrides_Apply(t *testing.T) {
	cfg := DefaultConfig()
	url := "http://10.0.0.9"
	empty := ""
	port := 9090

	FlagOverrides{DeviceURL: &url, IPCSocketPath: &empty, HTTPPort: &port}.Apply(&cfg)

	if cfg.Device.URL != url || cfg.HTTP.Port != 9090 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.IPC.SocketPath != "" {
		t.Errorf("an explicit empty socket path should disable IPC")
	}
	if cfg.Poll.IntervalMS != defaultPollIntervalMS {
		t.Errorf("unset override changed poll interval")
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cocktailcube.yaml")
	if err := os.WriteFile(path, []byte("http:\n  port: 8181\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.HTTP.Port != 8181 {
		t.Errorf("port = %d, want 8181", cfg.HTTP.Port)
	}

	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestSetupLogger_Formats(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, LogLevelWarn, "json")

	logger.Info("hidden")
	logger.Warn("device offline", "last_success_at", "never")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line at warn level, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("json handler output: %v", err)
	}
	if rec["msg"] != "device offline" {
		t.Errorf("msg = %v", rec["msg"])
	}

	if lvl, err := parseLogLevel(" Warning "); err != nil || lvl != LogLevelWarn {
		t.Errorf("parseLogLevel(Warning) = %v, %v", lvl, err)
	}
}
