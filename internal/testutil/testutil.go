package testutil

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/hireflow/sidecoach/internal/config"
)

// TestConfig returns a valid configuration for testing
func TestConfig() *config.Config {
	return &config.Config{
		Capture: config.CaptureConfig{
			SampleRate:        16000,
			Channels:          1,
			Format:            "f32",
			BufferSize:        8192,
			Device:            "",
			ChannelBufferSize: 30,
			Timeout:           5 * time.Minute,
		},
		Transcription: config.TranscriptionConfig{
			Token:            "test-token",
			FrameDuration:    100 * time.Millisecond,
			SilenceThreshold: time.Second,
		},
		Copilot: config.CopilotConfig{
			Enabled:           false,
			Model:             "gpt-4o-mini",
			ContextUtterances: 3,
		},
		Notifications: config.NotificationsConfig{
			Enabled: true,
			Type:    "log",
		},
	}
}

// FloatBlock returns n float32 samples of the given constant value.
func FloatBlock(n int, value float32) []float32 {
	block := make([]float32, n)
	for i := range block {
		block[i] = value
	}
	return block
}

// FloatBlockBytes returns n float32 samples in the little-endian wire form
// the capture source emits.
func FloatBlockBytes(n int, value float32) []byte {
	raw := make([]byte, n*4)
	bits := math.Float32bits(value)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(raw[i*4:], bits)
	}
	return raw
}

// TestContext returns a context with timeout for testing
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// WaitForCondition waits for a condition to be true or times out
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("Condition not met within %v", timeout)
		default:
			if condition() {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}
