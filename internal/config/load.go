package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

var ErrConfigNotFound = errors.New("config not found")

func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	dir := filepath.Join(configDir, "sidecoach")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(dir, "config.toml"), nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: run sidecoach init", ErrConfigNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", configPath, err)
	}

	log.Printf("Config: loading configuration from %s", configPath)
	var config Config
	if _, err := toml.DecodeFile(configPath, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	config.applyDefaults()

	log.Printf("Config: configuration loaded successfully")
	return &config, nil
}

// LoadOrDefault returns the saved configuration, or the defaults when none
// has been written yet. Foreground commands use this so `sidecoach listen`
// works on a fresh machine.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		if !errors.Is(err, ErrConfigNotFound) {
			log.Printf("Config: %v, using defaults", err)
		}
		return DefaultConfig()
	}
	return cfg
}

func Save(cfg *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(configPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file %s: %w", configPath, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configPath, err)
	}
	return nil
}

// applyDefaults fills zero values a hand-edited config commonly leaves out.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Capture.SampleRate == 0 {
		c.Capture.SampleRate = d.Capture.SampleRate
	}
	if c.Capture.Channels == 0 {
		c.Capture.Channels = d.Capture.Channels
	}
	if c.Capture.Format == "" {
		c.Capture.Format = d.Capture.Format
	}
	if c.Capture.BufferSize == 0 {
		c.Capture.BufferSize = d.Capture.BufferSize
	}
	if c.Capture.ChannelBufferSize == 0 {
		c.Capture.ChannelBufferSize = d.Capture.ChannelBufferSize
	}
	if c.Capture.Timeout == 0 {
		c.Capture.Timeout = d.Capture.Timeout
	}
	if c.Transcription.FrameDuration == 0 {
		c.Transcription.FrameDuration = d.Transcription.FrameDuration
	}
	if c.Transcription.SilenceThreshold == 0 {
		c.Transcription.SilenceThreshold = d.Transcription.SilenceThreshold
	}
	if c.Copilot.Model == "" {
		c.Copilot.Model = d.Copilot.Model
	}
	if c.Copilot.ContextUtterances == 0 {
		c.Copilot.ContextUtterances = d.Copilot.ContextUtterances
	}
}

// ResolveToken returns the transcription credential: config value first, then
// the SIDECOACH_TOKEN environment variable.
func (c *Config) ResolveToken() string {
	if c.Transcription.Token != "" {
		return c.Transcription.Token
	}
	return os.Getenv("SIDECOACH_TOKEN")
}

// ResolveCopilotKey returns the LLM API key: config value first, then the
// OPENAI_API_KEY environment variable.
func (c *Config) ResolveCopilotKey() string {
	if c.Copilot.APIKey != "" {
		return c.Copilot.APIKey
	}
	return os.Getenv("OPENAI_API_KEY")
}
