package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func useTempConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return dir
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"zero sample rate", func(c *Config) { c.Capture.SampleRate = 0 }, false},
		{"negative channels", func(c *Config) { c.Capture.Channels = -2 }, false},
		{"zero buffer", func(c *Config) { c.Capture.BufferSize = 0 }, false},
		{"empty format", func(c *Config) { c.Capture.Format = "" }, false},
		{"zero timeout", func(c *Config) { c.Capture.Timeout = 0 }, false},
		{"zero frame duration", func(c *Config) { c.Transcription.FrameDuration = 0 }, false},
		{"negative silence threshold", func(c *Config) { c.Transcription.SilenceThreshold = -time.Second }, false},
		{"endpoint without path", func(c *Config) { c.Transcription.Endpoint = "wss://stt.example.com" }, false},
		{"endpoint with path", func(c *Config) {
			c.Transcription.Endpoint = "wss://stt.example.com"
			c.Transcription.Path = "/v2/realtime/ws"
		}, true},
		{"copilot enabled without key", func(c *Config) { c.Copilot.Enabled = true }, false},
		{"copilot enabled with key", func(c *Config) {
			c.Copilot.Enabled = true
			c.Copilot.APIKey = "sk-test"
		}, true},
		{"copilot enabled empty model", func(c *Config) {
			c.Copilot.Enabled = true
			c.Copilot.APIKey = "sk-test"
			c.Copilot.Model = ""
		}, false},
		{"notification type desktop", func(c *Config) { c.Notifications.Type = "desktop" }, true},
		{"notification type bogus", func(c *Config) { c.Notifications.Type = "pager" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPENAI_API_KEY", "")
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.valid && err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestLoad_NotFound(t *testing.T) {
	useTempConfigDir(t)

	_, err := Load()
	if !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("Load() on empty dir = %v, want ErrConfigNotFound", err)
	}
}

func TestLoadOrDefault_FreshMachine(t *testing.T) {
	useTempConfigDir(t)

	cfg := LoadOrDefault()
	if cfg.Capture.SampleRate != 16000 {
		t.Errorf("sample rate = %d, want default 16000", cfg.Capture.SampleRate)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	useTempConfigDir(t)

	want := DefaultConfig()
	want.Capture.Device = "alsa_input.usb-mic"
	want.Transcription.SilenceThreshold = 1500 * time.Millisecond
	want.Copilot.Enabled = true
	want.Copilot.APIKey = "sk-test"

	if err := Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got.Capture.Device != want.Capture.Device {
		t.Errorf("device = %q, want %q", got.Capture.Device, want.Capture.Device)
	}
	if got.Transcription.SilenceThreshold != want.Transcription.SilenceThreshold {
		t.Errorf("silence threshold = %v, want %v", got.Transcription.SilenceThreshold, want.Transcription.SilenceThreshold)
	}
	if !got.Copilot.Enabled || got.Copilot.APIKey != "sk-test" {
		t.Errorf("copilot section = %+v", got.Copilot)
	}
}

func TestLoad_FillsOmittedFields(t *testing.T) {
	dir := useTempConfigDir(t)

	// A hand-edited minimal file: everything unset falls back.
	path := filepath.Join(dir, "sidecoach", "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	minimal := "[capture]\ndevice = \"alsa_input.usb-mic\"\n"
	if err := os.WriteFile(path, []byte(minimal), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Capture.Device != "alsa_input.usb-mic" {
		t.Errorf("device = %q", cfg.Capture.Device)
	}
	if cfg.Capture.SampleRate != 16000 {
		t.Errorf("sample rate = %d, want default", cfg.Capture.SampleRate)
	}
	if cfg.Transcription.FrameDuration != 100*time.Millisecond {
		t.Errorf("frame duration = %v, want default", cfg.Transcription.FrameDuration)
	}
	if cfg.Copilot.Model != "gpt-4o-mini" {
		t.Errorf("copilot model = %q, want default", cfg.Copilot.Model)
	}
}

func TestResolveToken(t *testing.T) {
	cfg := DefaultConfig()

	t.Setenv("SIDECOACH_TOKEN", "")
	if got := cfg.ResolveToken(); got != "" {
		t.Errorf("ResolveToken() = %q, want empty", got)
	}

	t.Setenv("SIDECOACH_TOKEN", "env-tok")
	if got := cfg.ResolveToken(); got != "env-tok" {
		t.Errorf("ResolveToken() = %q, want env value", got)
	}

	cfg.Transcription.Token = "file-tok"
	if got := cfg.ResolveToken(); got != "file-tok" {
		t.Errorf("ResolveToken() = %q, config value wins", got)
	}
}

func TestResolveCopilotKey(t *testing.T) {
	cfg := DefaultConfig()

	t.Setenv("OPENAI_API_KEY", "env-key")
	if got := cfg.ResolveCopilotKey(); got != "env-key" {
		t.Errorf("ResolveCopilotKey() = %q, want env value", got)
	}

	cfg.Copilot.APIKey = "file-key"
	if got := cfg.ResolveCopilotKey(); got != "file-key" {
		t.Errorf("ResolveCopilotKey() = %q, config value wins", got)
	}
}
