package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hireflow/sidecoach/internal/encode"
	"github.com/hireflow/sidecoach/internal/transcript"
)

// State of the duplex connection to the transcription service.
type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	Open         State = "open"
	Closed       State = "closed"
	Errored      State = "errored"
)

// EventType tags events delivered to the caller.
type EventType string

const (
	EventOpen       EventType = "open"
	EventTranscript EventType = "transcript"
	EventError      EventType = "error"
	EventClose      EventType = "close"
)

// Event is one occurrence on the transcription connection. Transcript is set
// for EventTranscript, Err for EventError.
type Event struct {
	Type       EventType
	Transcript transcript.Event
	Err        error
}

// EndpointConfig describes where the realtime transcription service lives.
type EndpointConfig struct {
	BaseURL string // e.g. wss://api.assemblyai.com
	Path    string // e.g. /v2/realtime/ws
}

func DefaultEndpoint() *EndpointConfig {
	return &EndpointConfig{
		BaseURL: "wss://api.assemblyai.com",
		Path:    "/v2/realtime/ws",
	}
}

// Config for one transcription session.
type Config struct {
	// Credential is the short-lived session token minted server-side.
	Credential string
	// SampleRate of the PCM16 audio that will be pushed, in Hz.
	SampleRate int
	// SilenceThreshold is the silence duration after which the service
	// auto-finalizes an utterance. Zero leaves the service default in place;
	// a configured value is passed through unmodified.
	SilenceThreshold time.Duration
	// HandshakeTimeout bounds the wait for the session-begins message.
	HandshakeTimeout time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.SampleRate == 0 {
		out.SampleRate = 16000
	}
	if out.HandshakeTimeout == 0 {
		out.HandshakeTimeout = 10 * time.Second
	}
	return out
}

// Client maintains a persistent duplex connection to the realtime speech-to-text
// service: audio frames out, ordered partial/final transcript events in.
//
// The client never retries on its own. Handshake and socket failures surface to
// the caller (as a Connect error or an EventError), and the caller decides
// whether to connect again.
type Client struct {
	endpoint *EndpointConfig
	cfg      Config

	mu     sync.Mutex
	conn   *websocket.Conn
	state  State
	events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	warnedDrop time.Time
}

// Outgoing messages.
type sessionConfigMessage struct {
	EndUtteranceSilenceThreshold int64 `json:"end_utterance_silence_threshold"`
}

type terminateMessage struct {
	TerminateSession bool `json:"terminate_session"`
}

// Incoming messages.
type wsMessage struct {
	MessageType string `json:"message_type"`
	SessionID   string `json:"session_id,omitempty"`
	Text        string `json:"text,omitempty"`
	Error       string `json:"error,omitempty"`
}

const (
	msgSessionBegins     = "SessionBegins"
	msgPartialTranscript = "PartialTranscript"
	msgFinalTranscript   = "FinalTranscript"
	msgSessionTerminated = "SessionTerminated"
)

func NewClient(endpoint *EndpointConfig, cfg Config) *Client {
	if endpoint == nil {
		endpoint = DefaultEndpoint()
	}
	return &Client{
		endpoint: endpoint,
		cfg:      cfg.withDefaults(),
		state:    Disconnected,
		events:   make(chan Event, 100),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Events returns the channel the caller consumes open/transcript/error/close
// events from. The channel is closed once the read loop exits.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Connect dials the service, completes the session handshake and applies the
// configured silence threshold. On failure the client transitions to Errored
// and the error is returned; nothing is retried internally.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return fmt.Errorf("connect: invalid state %s", c.state)
	}
	c.state = Connecting
	c.mu.Unlock()

	c.ctx, c.cancel = context.WithCancel(ctx)

	conn, err := c.dial()
	if err != nil {
		c.setState(Errored)
		return err
	}

	if err := c.handshake(conn); err != nil {
		conn.Close()
		c.setState(Errored)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.state = Open
	c.mu.Unlock()

	c.emit(Event{Type: EventOpen})

	c.wg.Add(1)
	go c.readLoop()

	log.Printf("stream: session open, sample_rate=%d", c.cfg.SampleRate)
	return nil
}

func (c *Client) dial() (*websocket.Conn, error) {
	wsURL, err := c.buildURL()
	if err != nil {
		return nil, fmt.Errorf("build websocket url: %w", err)
	}

	log.Printf("stream: connecting to %s", c.endpoint.BaseURL+c.endpoint.Path)
	conn, resp, err := websocket.DefaultDialer.DialContext(c.ctx, wsURL, http.Header{})
	if err != nil {
		if resp != nil {
			log.Printf("stream: dial failed with status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

// handshake waits for the SessionBegins message and pushes the silence
// threshold, so the caller only sees an open connection that is ready for audio.
func (c *Client) handshake(conn *websocket.Conn) error {
	deadline := time.Now().Add(c.cfg.HandshakeTimeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("set handshake deadline: %w", err)
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("handshake read: %w", err)
	}

	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("handshake parse: %w", err)
	}
	if msg.Error != "" {
		return fmt.Errorf("handshake rejected: %s", msg.Error)
	}
	if msg.MessageType != msgSessionBegins {
		return fmt.Errorf("handshake: unexpected message type %q", msg.MessageType)
	}
	log.Printf("stream: session begins, session_id=%s", msg.SessionID)

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return fmt.Errorf("clear handshake deadline: %w", err)
	}

	if c.cfg.SilenceThreshold > 0 {
		cfgMsg := sessionConfigMessage{
			EndUtteranceSilenceThreshold: c.cfg.SilenceThreshold.Milliseconds(),
		}
		if err := conn.WriteJSON(cfgMsg); err != nil {
			return fmt.Errorf("send silence threshold: %w", err)
		}
	}

	return nil
}

func (c *Client) buildURL() (string, error) {
	u, err := url.Parse(c.endpoint.BaseURL + c.endpoint.Path)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	q := u.Query()
	q.Set("sample_rate", strconv.Itoa(c.cfg.SampleRate))
	q.Set("token", c.cfg.Credential)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// readLoop reads service messages and fans them out as events until the
// connection ends. It owns closing the events channel.
func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.events)

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			c.emit(Event{Type: EventClose})
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
				// Caller-initiated close; not an error.
				c.setState(Closed)
				c.emit(Event{Type: EventClose})
			default:
				c.setState(Errored)
				c.emit(Event{Type: EventError, Err: fmt.Errorf("websocket read: %w", err)})
				c.emit(Event{Type: EventClose})
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("stream: parse error: %v", err)
			continue
		}

		switch msg.MessageType {
		case msgPartialTranscript:
			if msg.Text != "" {
				c.emit(Event{Type: EventTranscript, Transcript: transcript.Event{Kind: transcript.Partial, Text: msg.Text}})
			}

		case msgFinalTranscript:
			// Empty finals still advance the utterance index server-side, but
			// carry nothing worth displaying.
			if msg.Text != "" {
				c.emit(Event{Type: EventTranscript, Transcript: transcript.Event{Kind: transcript.Final, Text: msg.Text}})
			}

		case msgSessionTerminated:
			log.Printf("stream: session terminated by service")
			c.setState(Closed)
			c.emit(Event{Type: EventClose})
			return

		default:
			if msg.Error != "" {
				c.setState(Errored)
				c.emit(Event{Type: EventError, Err: fmt.Errorf("service error: %s", msg.Error)})
				continue
			}
			log.Printf("stream: unknown message type: %s", msg.MessageType)
		}
	}
}

// SendFrame pushes one audio frame over the connection. Valid only while open;
// outside the open state the frame is dropped with a rate-limited warning —
// the recognizer tolerates small gaps, so frames that race a close are not
// worth a crash.
func (c *Client) SendFrame(frame encode.Frame) error {
	c.mu.Lock()
	if c.state != Open {
		state := c.state
		if time.Since(c.warnedDrop) > time.Second {
			log.Printf("stream: dropping frame seq=%d, connection %s", frame.Seq, state)
			c.warnedDrop = time.Now()
		}
		c.mu.Unlock()
		return nil
	}
	err := c.conn.WriteMessage(websocket.BinaryMessage, frame.Bytes())
	c.mu.Unlock()
	if err != nil {
		// The read loop sees the same broken socket and reports the error
		// event; here it is enough to flip the state and tell the caller.
		c.setState(Errored)
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Close gracefully ends the session: best-effort terminate message, close
// frame, socket close, then wait for the read loop to drain. Safe to call
// twice and safe to call on a never-connected client.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == Closed || c.state == Disconnected {
		if c.state == Disconnected {
			c.state = Closed
		}
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	c.conn = nil
	if c.state != Errored {
		c.state = Closed
	}

	if c.cancel != nil {
		c.cancel()
	}

	// The socket writes stay under the mutex so they cannot interleave with a
	// SendFrame that raced the close.
	if conn != nil {
		_ = conn.WriteJSON(terminateMessage{TerminateSession: true})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
	c.mu.Unlock()

	c.wg.Wait()

	log.Printf("stream: closed")
	return nil
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		log.Printf("stream: event buffer full, dropping %s event", ev.Type)
	}
}
