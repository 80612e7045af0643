package capture

import (
	"errors"
	"testing"
)

func TestBuildRecorderArgs(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name   string
		device string
		want   []string
	}{
		{
			name:   "default source",
			device: "",
			want:   []string{"--format", "f32", "--rate", "16000", "--channels", "1", "-"},
		},
		{
			name:   "explicit target",
			device: "alsa_input.usb-mic",
			want:   []string{"--format", "f32", "--rate", "16000", "--channels", "1", "-", "--target", "alsa_input.usb-mic"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildRecorderArgs(cfg, tt.device)
			if len(got) != len(tt.want) {
				t.Fatalf("args = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("args[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	valid := DefaultConfig()
	if err := valid.validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"negative channels", func(c *Config) { c.Channels = -1 }},
		{"zero buffer", func(c *Config) { c.BufferSize = 0 }},
		{"zero channel buffer", func(c *Config) { c.ChannelBufferSize = 0 }},
		{"blank format", func(c *Config) { c.Format = "  " }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.validate(); err == nil {
				t.Error("validate() = nil, want error")
			}
		})
	}
}

func TestClassifyRecorderError(t *testing.T) {
	tests := []struct {
		stderr string
		want   error
	}{
		{"error: Permission denied accessing node", ErrPermissionDenied},
		{"ACCESS DENIED by policy", ErrPermissionDenied},
		{"client not authorized to capture", ErrPermissionDenied},
		{"buffer underrun", nil},
		{"", nil},
	}
	for _, tt := range tests {
		got := classifyRecorderError(tt.stderr)
		if tt.want == nil {
			if got != nil {
				t.Errorf("classifyRecorderError(%q) = %v, want nil", tt.stderr, got)
			}
			continue
		}
		if !errors.Is(got, tt.want) {
			t.Errorf("classifyRecorderError(%q) = %v, want %v", tt.stderr, got, tt.want)
		}
	}
}

func TestMonitorTarget(t *testing.T) {
	devices := []Device{
		{ID: "alsa_input.usb-mic", Label: "USB Mic"},
		{ID: "alsa_output.analog-stereo.monitor", Label: "Monitor of Built-in Audio", Monitor: true},
		{ID: "alsa_output.hdmi.monitor", Label: "Monitor of HDMI", Monitor: true},
	}

	target, err := monitorTarget(devices)
	if err != nil {
		t.Fatalf("monitorTarget() error = %v", err)
	}
	if target != "alsa_output.analog-stereo.monitor" {
		t.Errorf("target = %q, want the first monitor source", target)
	}
}

func TestMonitorTarget_NoAudioTrack(t *testing.T) {
	// A share with only microphones carries no system audio: abort before any
	// transcription session exists.
	tests := []struct {
		name    string
		devices []Device
	}{
		{"no devices", nil},
		{"microphones only", []Device{
			{ID: "alsa_input.usb-mic", Label: "USB Mic"},
			{ID: "bluez_input.headset", Label: "Headset"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := monitorTarget(tt.devices); !errors.Is(err, ErrNoAudioTrack) {
				t.Errorf("monitorTarget() error = %v, want ErrNoAudioTrack", err)
			}
		})
	}
}

func TestParseSources(t *testing.T) {
	raw := []byte(`[
		{"name": "alsa_input.pci-0000_00_1f.3.analog-stereo", "description": "Built-in Audio Analog Stereo"},
		{"name": "alsa_output.pci-0000_00_1f.3.analog-stereo.monitor", "description": "Monitor of Built-in Audio"},
		{"name": "bluez_input.AA_BB", "description": ""},
		{"name": "", "description": "ghost entry"}
	]`)

	devices, err := parseSources(raw)
	if err != nil {
		t.Fatalf("parseSources() error = %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("got %d devices, want 3 (nameless entries skipped)", len(devices))
	}

	if devices[0].Label != "Built-in Audio Analog Stereo" {
		t.Errorf("label = %q, want description", devices[0].Label)
	}
	if devices[0].Monitor {
		t.Error("plain input flagged as monitor")
	}
	if !devices[1].Monitor {
		t.Error("monitor source not flagged")
	}
	if devices[2].Label != "Source bluez..." {
		t.Errorf("fallback label = %q, want %q", devices[2].Label, "Source bluez...")
	}
}

func TestParseSources_Invalid(t *testing.T) {
	if _, err := parseSources([]byte("not json")); err == nil {
		t.Error("parseSources() on garbage = nil, want error")
	}
}

func TestParseSources_Empty(t *testing.T) {
	devices, err := parseSources([]byte("[]"))
	if err != nil {
		t.Fatalf("parseSources() error = %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("got %d devices, want 0", len(devices))
	}
}

func TestTruncateID(t *testing.T) {
	if got := truncateID("abc"); got != "abc" {
		t.Errorf("truncateID(short) = %q", got)
	}
	if got := truncateID("abcdefgh"); got != "abcde..." {
		t.Errorf("truncateID(long) = %q", got)
	}
}

func TestDescribeStates(t *testing.T) {
	// A session that never started a recorder still releases cleanly.
	s := &Session{state: Idle}
	if s.State() != Idle {
		t.Errorf("State() = %s, want %s", s.State(), Idle)
	}
	if err := s.Release(); err != nil {
		t.Errorf("Release() = %v", err)
	}
	if s.State() != Stopped {
		t.Errorf("State() after Release = %s, want %s", s.State(), Stopped)
	}
	if err := s.Release(); err != nil {
		t.Errorf("second Release() = %v", err)
	}
}

func TestInvalidConfigRejectedBeforeSpawn(t *testing.T) {
	src := NewSource(Config{})
	if _, err := src.open(t.Context(), Microphone, ""); err == nil {
		t.Error("open() with zero config = nil, want error")
	}
}
