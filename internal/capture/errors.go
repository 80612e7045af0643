package capture

import (
	"errors"
	"strings"
)

// Sentinel errors for the user-actionable failure modes of acquisition. The
// caller owns the messaging; these exist so it can tell "ask the user to fix
// permissions" apart from "this platform can't do it at all".
var (
	// ErrPermissionDenied: device access was refused by the user or OS.
	ErrPermissionDenied = errors.New("audio device access denied")

	// ErrUnsupportedEnvironment: the platform lacks the capture tooling
	// (PipeWire not installed or not running).
	ErrUnsupportedEnvironment = errors.New("audio capture not supported in this environment")

	// ErrNoAudioTrack: meeting capture was possible but no system-audio
	// (monitor) source exists. A session without audio is aborted rather
	// than silently left transcript-less.
	ErrNoAudioTrack = errors.New("no audio track available for meeting capture")
)

// classifyRecorderError maps recorder stderr output onto the error taxonomy.
func classifyRecorderError(stderr string) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "access denied"),
		strings.Contains(lower, "not authorized"):
		return ErrPermissionDenied
	default:
		return nil
	}
}
