package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hireflow/sidecoach/internal/capture"
	"github.com/hireflow/sidecoach/internal/config"
	"github.com/hireflow/sidecoach/internal/encode"
	"github.com/hireflow/sidecoach/internal/stream"
	"github.com/hireflow/sidecoach/internal/transcript"
)

// AudioSource is the capture half of a session. *capture.Session satisfies it;
// tests feed synthetic blocks through a fake.
type AudioSource interface {
	Frames() <-chan []byte
	Errors() <-chan error
	Release() error
}

// TranscriptionClient is the network half. *stream.Client satisfies it.
type TranscriptionClient interface {
	Connect(ctx context.Context) error
	SendFrame(frame encode.Frame) error
	Events() <-chan stream.Event
	Close() error
	State() stream.State
}

// Config for one listening session. The credential and silence threshold live
// on the stream client the caller constructs; this only holds what the pumps
// themselves need.
type Config struct {
	SampleRate    int
	FrameDuration time.Duration
	// Timeout bounds the whole session; zero means no bound.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.FrameDuration == 0 {
		c.FrameDuration = 100 * time.Millisecond
	}
	return c
}

// Session wires one capture session to one transcription connection and keeps
// the live transcript. Exactly one of each exists per session; teardown is a
// single entry point that always runs every step.
type Session struct {
	ID string

	source  AudioSource
	client  TranscriptionClient
	encoder *encode.Encoder
	tx      *transcript.Transcript

	mu       sync.Mutex
	onUpdate func([]transcript.Slot)
	onFinal  func(text string)
	stopped  bool
	stopErr  error

	cancel     context.CancelFunc
	timer      *time.Timer
	audioDone  chan struct{}
	eventsDone chan struct{}
	errs       chan error
}

// BeginTranscription connects the client and starts pumping audio from the
// source into it and transcript events back out. The source must already be
// capturing; on connect failure it is NOT released (the caller may retry with
// a fresh client while capture continues).
func BeginTranscription(ctx context.Context, source AudioSource, client TranscriptionClient, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()

	s := &Session{
		ID:     uuid.NewString(),
		source: source,
		client: client,
		encoder: encode.New(encode.Config{
			SampleRate:    cfg.SampleRate,
			FrameDuration: cfg.FrameDuration.Seconds(),
		}),
		tx:         transcript.New(),
		audioDone:  make(chan struct{}),
		eventsDone: make(chan struct{}),
		errs:       make(chan error, 4),
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := client.Connect(runCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("begin transcription: %w", err)
	}

	s.tx.OnUpdate(func(slots []transcript.Slot) {
		s.mu.Lock()
		fn := s.onUpdate
		s.mu.Unlock()
		if fn != nil {
			fn(slots)
		}
	})

	go s.audioPump(runCtx)
	go s.eventPump()

	if cfg.Timeout > 0 {
		s.timer = time.AfterFunc(cfg.Timeout, func() {
			log.Printf("session %s: timeout reached, stopping", s.ID)
			if err := s.StopAndRelease(); err != nil {
				log.Printf("session %s: timeout teardown: %v", s.ID, err)
			}
		})
	}

	log.Printf("session %s: transcription started", s.ID)
	return s, nil
}

// Open builds the real capture source and stream client from application
// config and begins transcription. kind selects microphone or meeting capture.
func Open(ctx context.Context, cfg *config.Config, kind capture.Kind, deviceID string) (*Session, *capture.Session, error) {
	src := capture.NewSource(capture.Config{
		SampleRate:        cfg.Capture.SampleRate,
		Channels:          cfg.Capture.Channels,
		Format:            cfg.Capture.Format,
		BufferSize:        cfg.Capture.BufferSize,
		ChannelBufferSize: cfg.Capture.ChannelBufferSize,
	})

	var (
		capSess *capture.Session
		err     error
	)
	switch kind {
	case capture.Meeting:
		capSess, err = src.Meeting(ctx)
	default:
		if deviceID == "" {
			deviceID = cfg.Capture.Device
		}
		capSess, err = src.Microphone(ctx, deviceID)
	}
	if err != nil {
		return nil, nil, err
	}

	var endpoint *stream.EndpointConfig
	if cfg.Transcription.Endpoint != "" {
		endpoint = &stream.EndpointConfig{
			BaseURL: cfg.Transcription.Endpoint,
			Path:    cfg.Transcription.Path,
		}
	}
	client := stream.NewClient(endpoint, stream.Config{
		Credential:       cfg.ResolveToken(),
		SampleRate:       cfg.Capture.SampleRate,
		SilenceThreshold: cfg.Transcription.SilenceThreshold,
	})

	sess, err := BeginTranscription(ctx, capSess, client, Config{
		SampleRate:    cfg.Capture.SampleRate,
		FrameDuration: cfg.Transcription.FrameDuration,
		Timeout:       cfg.Capture.Timeout,
	})
	if err != nil {
		// Capture must not leak when the handshake fails.
		_ = capSess.Release()
		return nil, nil, err
	}
	return sess, capSess, nil
}

// OnTranscriptUpdate registers the live-display subscriber. It receives a
// snapshot of all utterance slots after every applied event.
func (s *Session) OnTranscriptUpdate(fn func(slots []transcript.Slot)) {
	s.mu.Lock()
	s.onUpdate = fn
	s.mu.Unlock()
}

// OnFinalUtterance registers a hook invoked with each finalized utterance;
// the copilot layer hangs off this.
func (s *Session) OnFinalUtterance(fn func(text string)) {
	s.mu.Lock()
	s.onFinal = fn
	s.mu.Unlock()
}

// Errors surfaces capture and connection errors to the caller, which owns
// retry policy and user messaging.
func (s *Session) Errors() <-chan error { return s.errs }

// Transcript returns the live transcript owned by this session.
func (s *Session) Transcript() *transcript.Transcript { return s.tx }

// audioPump moves capture blocks through the encoder and ships every complete
// frame. Encoding is synchronous bounded work; the 100ms frame cadence keeps
// each iteration well under the real-time budget.
func (s *Session) audioPump(ctx context.Context) {
	defer close(s.audioDone)

	for {
		select {
		case <-ctx.Done():
			return

		case block, ok := <-s.source.Frames():
			if !ok {
				return
			}
			for _, frame := range s.encoder.PushBytes(block) {
				if err := s.client.SendFrame(frame); err != nil {
					s.emitErr(fmt.Errorf("send frame: %w", err))
				}
			}

		case err, ok := <-s.source.Errors():
			if !ok {
				return
			}
			if err != nil {
				s.emitErr(fmt.Errorf("capture: %w", err))
			}
		}
	}
}

// eventPump applies transcript events until the client's event channel closes.
// It deliberately has no ctx case: on teardown the channel is drained to the
// end so a final that beat the close is never lost.
func (s *Session) eventPump() {
	defer close(s.eventsDone)

	for ev := range s.client.Events() {
		switch ev.Type {
		case stream.EventTranscript:
			s.tx.Apply(ev.Transcript)
			if ev.Transcript.Kind == transcript.Final {
				s.mu.Lock()
				fn := s.onFinal
				s.mu.Unlock()
				if fn != nil {
					fn(ev.Transcript.Text)
				}
			}

		case stream.EventError:
			if ev.Err != nil {
				s.emitErr(fmt.Errorf("transcription: %w", ev.Err))
			}

		case stream.EventClose:
			log.Printf("session %s: transcription connection closed", s.ID)

		case stream.EventOpen:
			// Already logged by the client.
		}
	}
}

// StopTranscription ends the transcription connection but leaves capture
// running; the session degrades to no-live-text. Pending events are drained
// first so settled text survives.
func (s *Session) StopTranscription() error {
	err := s.client.Close()
	<-s.eventsDone
	return err
}

// StopAndRelease tears the whole session down: (1) stop capture tracks,
// (2) stop the audio pump, (3) close the transcription connection and drain
// queued events into the transcript, (4) stop timers. Every step runs even if
// an earlier one fails; errors are joined. Idempotent.
func (s *Session) StopAndRelease() error {
	s.mu.Lock()
	if s.stopped {
		err := s.stopErr
		s.mu.Unlock()
		return err
	}
	s.stopped = true
	s.mu.Unlock()

	var errs []error

	if err := s.source.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release capture: %w", err))
	}

	if s.cancel != nil {
		s.cancel()
	}

	if err := s.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close transcription: %w", err))
	}

	if s.timer != nil {
		s.timer.Stop()
	}

	// Both pumps exit once their channels close; waiting here is what makes
	// the drain-before-done guarantee hold.
	<-s.audioDone
	<-s.eventsDone
	close(s.errs)

	err := errors.Join(errs...)
	s.mu.Lock()
	s.stopErr = err
	s.mu.Unlock()

	log.Printf("session %s: stopped", s.ID)
	return err
}

func (s *Session) emitErr(err error) {
	select {
	case s.errs <- err:
	default:
	}
	log.Printf("session %s: %v", s.ID, err)
}
