package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Device is one enumerable audio input. Monitor sources carry another
// application's playback (system audio) rather than a physical microphone.
type Device struct {
	ID      string
	Label   string
	Monitor bool
}

// pactlSource is the subset of `pactl --format=json list sources` we care about.
type pactlSource struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Devices lists the available audio sources in enumeration order. The result
// is cached on the Source; enumeration is idempotent and may be called
// repeatedly (the CLI does, once per prompt).
func (s *Source) Devices(ctx context.Context) ([]Device, error) {
	s.mu.Lock()
	if s.devices != nil {
		cached := make([]Device, len(s.devices))
		copy(cached, s.devices)
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	devices, err := enumerateSources(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.devices = devices
	s.mu.Unlock()

	out := make([]Device, len(devices))
	copy(out, devices)
	return out, nil
}

// InvalidateDevices drops the enumeration cache, e.g. after a hotplug.
func (s *Source) InvalidateDevices() {
	s.mu.Lock()
	s.devices = nil
	s.mu.Unlock()
}

func enumerateSources(ctx context.Context) ([]Device, error) {
	if _, err := exec.LookPath("pactl"); err != nil {
		return nil, fmt.Errorf("%w: pactl not found (install pipewire-pulse)", ErrUnsupportedEnvironment)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	listCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	out, err := exec.CommandContext(listCtx, "pactl", "--format=json", "list", "sources").Output()
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	return parseSources(out)
}

func parseSources(raw []byte) ([]Device, error) {
	var sources []pactlSource
	if err := json.Unmarshal(raw, &sources); err != nil {
		return nil, fmt.Errorf("parse source list: %w", err)
	}

	devices := make([]Device, 0, len(sources))
	for _, src := range sources {
		if src.Name == "" {
			continue
		}
		label := src.Description
		if label == "" {
			// Same fallback the UI layer used: a truncated id beats a blank row.
			label = "Source " + truncateID(src.Name)
		}
		devices = append(devices, Device{
			ID:      src.Name,
			Label:   label,
			Monitor: strings.HasSuffix(src.Name, ".monitor"),
		})
	}
	return devices, nil
}

func truncateID(id string) string {
	if len(id) <= 5 {
		return id
	}
	return id[:5] + "..."
}
