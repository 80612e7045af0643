package config

import "time"

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() *Config {
	return &Config{
		Capture: CaptureConfig{
			SampleRate:        16000,
			Channels:          1,
			Format:            "f32",
			BufferSize:        8192,
			Device:            "",
			ChannelBufferSize: 30,
			Timeout:           2 * time.Hour,
		},
		Transcription: TranscriptionConfig{
			Endpoint:         "",
			Path:             "",
			FrameDuration:    100 * time.Millisecond,
			SilenceThreshold: time.Second,
		},
		Copilot: CopilotConfig{
			Enabled:           false,
			Model:             "gpt-4o-mini",
			ContextUtterances: 3,
		},
		Notifications: NotificationsConfig{
			Enabled: false,
			Type:    "",
		},
	}
}
