package config

import "time"

type Config struct {
	Capture       CaptureConfig       `toml:"capture"`
	Transcription TranscriptionConfig `toml:"transcription"`
	Copilot       CopilotConfig       `toml:"copilot"`
	Notifications NotificationsConfig `toml:"notifications"`
}

type CaptureConfig struct {
	SampleRate        int           `toml:"sample_rate"`
	Channels          int           `toml:"channels"`
	Format            string        `toml:"format"`
	BufferSize        int           `toml:"buffer_size"`
	Device            string        `toml:"device"`
	ChannelBufferSize int           `toml:"channel_buffer_size"`
	Timeout           time.Duration `toml:"timeout"`
}

type TranscriptionConfig struct {
	// Endpoint/Path of the realtime transcription service; empty means the
	// hosted default.
	Endpoint string `toml:"endpoint"`
	Path     string `toml:"path"`
	// Token is the session credential. Usually left empty here and supplied
	// via the SIDECOACH_TOKEN environment variable, since it is short-lived.
	Token            string        `toml:"token"`
	FrameDuration    time.Duration `toml:"frame_duration"`
	SilenceThreshold time.Duration `toml:"silence_threshold"`
}

type CopilotConfig struct {
	Enabled bool   `toml:"enabled"`
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
	// ContextUtterances is how many previous finalized utterances accompany a
	// new one into question detection.
	ContextUtterances int `toml:"context_utterances"`
}

type NotificationsConfig struct {
	Enabled bool   `toml:"enabled"`
	Type    string `toml:"type"` // "desktop", "log", "none"
}
