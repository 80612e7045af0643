package config

import "fmt"

func (c *Config) Validate() error {
	if c.Capture.SampleRate <= 0 {
		return fmt.Errorf("invalid capture.sample_rate: %d", c.Capture.SampleRate)
	}
	if c.Capture.Channels <= 0 {
		return fmt.Errorf("invalid capture.channels: %d", c.Capture.Channels)
	}
	if c.Capture.BufferSize <= 0 {
		return fmt.Errorf("invalid capture.buffer_size: %d", c.Capture.BufferSize)
	}
	if c.Capture.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid capture.channel_buffer_size: %d", c.Capture.ChannelBufferSize)
	}
	if c.Capture.Format == "" {
		return fmt.Errorf("invalid capture.format: empty")
	}
	if c.Capture.Timeout <= 0 {
		return fmt.Errorf("invalid capture.timeout: %v", c.Capture.Timeout)
	}

	if c.Transcription.FrameDuration <= 0 {
		return fmt.Errorf("invalid transcription.frame_duration: %v", c.Transcription.FrameDuration)
	}
	if c.Transcription.SilenceThreshold < 0 {
		return fmt.Errorf("invalid transcription.silence_threshold: %v", c.Transcription.SilenceThreshold)
	}
	if (c.Transcription.Endpoint == "") != (c.Transcription.Path == "") {
		return fmt.Errorf("transcription.endpoint and transcription.path must be set together")
	}

	if c.Copilot.Enabled {
		if c.ResolveCopilotKey() == "" {
			return fmt.Errorf("copilot API key required: not found in config (copilot.api_key) or environment variable (OPENAI_API_KEY)")
		}
		if c.Copilot.Model == "" {
			return fmt.Errorf("invalid copilot.model: empty")
		}
		if c.Copilot.ContextUtterances < 0 {
			return fmt.Errorf("invalid copilot.context_utterances: %d", c.Copilot.ContextUtterances)
		}
	}

	switch c.Notifications.Type {
	case "", "desktop", "log", "none":
	default:
		return fmt.Errorf("invalid notifications.type: %s (must be desktop, log, or none)", c.Notifications.Type)
	}

	return nil
}
