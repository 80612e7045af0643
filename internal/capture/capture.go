package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind of acquisition.
type Kind string

const (
	Microphone Kind = "microphone"
	Meeting    Kind = "meeting"
)

// State of one capture session.
type State string

const (
	Idle      State = "idle"
	Selecting State = "selecting"
	Active    State = "active"
	Stopped   State = "stopped"
)

type Config struct {
	SampleRate        int
	Channels          int
	Format            string // pw-record format, f32 so the encoder owns quantization
	BufferSize        int
	ChannelBufferSize int
}

func DefaultConfig() Config {
	return Config{
		SampleRate:        16000,
		Channels:          1,
		Format:            "f32",
		BufferSize:        8192,
		ChannelBufferSize: 30,
	}
}

// Source acquires live audio streams via PipeWire. One Source can open many
// sessions over its lifetime; device enumeration results are cached on it.
type Source struct {
	cfg Config

	mu      sync.Mutex
	devices []Device
}

func NewSource(cfg Config) *Source {
	return &Source{cfg: cfg}
}

func NewDefaultSource() *Source { return NewSource(DefaultConfig()) }

// Session is one live acquisition: the recorder process, the selected device
// and the lifecycle state. Whoever opens a Session must guarantee Release on
// every exit path.
type Session struct {
	ID     string
	Kind   Kind
	Device string

	frames chan []byte
	errs   chan error

	mu     sync.Mutex
	state  State
	cmd    *exec.Cmd
	cancel context.CancelFunc

	wg sync.WaitGroup
}

// Frames delivers raw little-endian float32 PCM blocks as the recorder
// produces them. Closed when the session ends.
func (s *Session) Frames() <-chan []byte { return s.frames }

// Errors delivers at most one fatal capture error. Closed when the session ends.
func (s *Session) Errors() <-chan error { return s.errs }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Release stops the recorder and reaps the process. Idempotent; safe on every
// exit path including errors and teardown races.
func (s *Session) Release() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.setState(Stopped)
	return nil
}

// CheckAvailable probes for the PipeWire tooling this package shells out to.
// A short timeout keeps a misconfigured audio stack from hanging the caller.
func CheckAvailable(ctx context.Context) error {
	if _, err := exec.LookPath("pw-record"); err != nil {
		return fmt.Errorf("%w: pw-record not found (install pipewire-tools)", ErrUnsupportedEnvironment)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := exec.CommandContext(checkCtx, "pw-cli", "info").Run(); err != nil {
		return fmt.Errorf("%w: PipeWire not running or accessible: %v", ErrUnsupportedEnvironment, err)
	}
	return nil
}

// Microphone opens a capture session on the given input device.
func (s *Source) Microphone(ctx context.Context, deviceID string) (*Session, error) {
	if err := CheckAvailable(ctx); err != nil {
		return nil, err
	}
	return s.open(ctx, Microphone, deviceID)
}

// Meeting opens a capture session on a system-audio (monitor) source - the
// closest thing a headless platform has to sharing a meeting tab. Fails with
// ErrNoAudioTrack when the selected share carries no audio.
func (s *Source) Meeting(ctx context.Context) (*Session, error) {
	if err := CheckAvailable(ctx); err != nil {
		return nil, err
	}

	devices, err := s.Devices(ctx)
	if err != nil {
		return nil, err
	}

	target, err := monitorTarget(devices)
	if err != nil {
		return nil, err
	}

	return s.open(ctx, Meeting, target)
}

// monitorTarget picks the system-audio source for meeting capture. A share
// exposing no monitor source carries no audio, which aborts the session
// before any transcription work starts.
func monitorTarget(devices []Device) (string, error) {
	for _, d := range devices {
		if d.Monitor {
			return d.ID, nil
		}
	}
	return "", ErrNoAudioTrack
}

func (s *Source) open(ctx context.Context, kind Kind, device string) (*Session, error) {
	if err := s.cfg.validate(); err != nil {
		return nil, err
	}

	sessCtx, cancel := context.WithCancel(ctx)

	sess := &Session{
		ID:     uuid.NewString(),
		Kind:   kind,
		Device: device,
		frames: make(chan []byte, s.cfg.ChannelBufferSize),
		errs:   make(chan error, 1),
		state:  Selecting,
		cancel: cancel,
	}

	sess.wg.Add(1)
	go sess.captureLoop(sessCtx, s.cfg)

	return sess, nil
}

func (s *Session) captureLoop(ctx context.Context, cfg Config) {
	defer func() {
		close(s.frames)
		close(s.errs)
		s.setState(Stopped)

		s.mu.Lock()
		if s.cmd != nil {
			_ = s.cmd.Wait()
			s.cmd = nil
		}
		s.mu.Unlock()

		s.wg.Done()
	}()

	args := buildRecorderArgs(cfg, s.Device)
	cmd := exec.CommandContext(ctx, "pw-record", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.emitErr(fmt.Errorf("create stdout pipe: %w", err))
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.emitErr(fmt.Errorf("create stderr pipe: %w", err))
		return
	}

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	if err := cmd.Start(); err != nil {
		s.emitErr(fmt.Errorf("start pw-record: %w", err))
		return
	}

	// Keep the last stderr line so exit errors can be classified.
	var lastStderr string
	var stderrMu sync.Mutex
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			stderrMu.Lock()
			lastStderr = line
			stderrMu.Unlock()
			log.Printf("capture stderr: %s", line)
		}
	}()

	s.setState(Active)

	buffer := make([]byte, cfg.BufferSize)
	var droppedCount int
	lastDropLog := time.Now()

	for {
		n, readErr := stdout.Read(buffer)
		if n > 0 {
			block := make([]byte, n)
			copy(block, buffer[:n])

			select {
			case s.frames <- block:
			case <-ctx.Done():
				return
			default:
				droppedCount++
				if time.Since(lastDropLog) > time.Second {
					log.Printf("capture: dropped %d blocks due to backpressure", droppedCount)
					lastDropLog = time.Now()
					droppedCount = 0
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				if ctx.Err() != nil {
					return
				}
				// Recorder exited on its own; see if stderr tells us why.
				stderrMu.Lock()
				detail := lastStderr
				stderrMu.Unlock()
				if cerr := classifyRecorderError(detail); cerr != nil {
					s.emitErr(cerr)
				} else {
					s.emitErr(fmt.Errorf("recorder exited: %s", detail))
				}
				return
			}
			s.emitErr(fmt.Errorf("read audio: %w", readErr))
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (s *Session) emitErr(err error) {
	select {
	case s.errs <- err:
	default:
	}
	log.Printf("capture error: %v", err)
}

func buildRecorderArgs(cfg Config, device string) []string {
	args := []string{
		"--format", cfg.Format,
		"--rate", strconv.Itoa(cfg.SampleRate),
		"--channels", strconv.Itoa(cfg.Channels),
		"-", // stdout
	}
	if device != "" {
		args = append(args, "--target", device)
	}
	return args
}

func (c Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid SampleRate: %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("invalid Channels: %d", c.Channels)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("invalid BufferSize: %d", c.BufferSize)
	}
	if c.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid ChannelBufferSize: %d", c.ChannelBufferSize)
	}
	if strings.TrimSpace(c.Format) == "" {
		return fmt.Errorf("invalid Format: empty")
	}
	return nil
}
