package ws

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"live-quiz-client/internal/domain"
	"live-quiz-client/internal/protocol"
)

// Endpoint addresses the quiz channel of one participant.
type Endpoint struct {
	BaseURL     string // e.g. ws://localhost:8000
	QuizID      string
	Participant string
}

// URL builds ws://host/ws/quiz/{quizID}?username={participant}.
func (e Endpoint) URL() (string, error) {
	if e.QuizID == "" || e.Participant == "" {
		return "", fmt.Errorf("endpoint requires quiz id and participant")
	}
	base, err := url.Parse(strings.TrimRight(e.BaseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch base.Scheme {
	case "ws", "wss":
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", base.Scheme)
	}
	prefix := base.EscapedPath()
	base.Path = base.Path + "/ws/quiz/" + e.QuizID
	base.RawPath = prefix + "/ws/quiz/" + url.PathEscape(e.QuizID)
	base.RawQuery = url.Values{"username": []string{e.Participant}}.Encode()
	return base.String(), nil
}

// Config holds timeouts and limits for the channel.
type Config struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
	ReadBufferSize   int
	WriteBufferSize  int
	SendBufferSize   int
}

// DefaultConfig returns default channel configuration.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		MaxMessageSize:   64 * 1024,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		SendBufferSize:   16,
	}
}

// withDefaults replaces non-positive timeouts and limits with their defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = d.WriteBufferSize
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = d.SendBufferSize
	}
	return c
}

// Event is either a state change (Frame == nil) or an inbound text frame.
type Event struct {
	State domain.ConnectionState
	Frame []byte
	Err   error
}

// Conn owns the single websocket channel of a session.
type Conn struct {
	ID       string
	endpoint Endpoint
	config   Config
	dialer   *websocket.Dialer
	logger   zerolog.Logger

	mu     sync.Mutex
	state  domain.ConnectionState
	opened bool
	ws     *websocket.Conn

	send      chan []byte
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// New creates an unopened channel for endpoint. Zero values in config fall
// back to DefaultConfig.
func New(endpoint Endpoint, config Config) *Conn {
	config = config.withDefaults()
	id := uuid.New().String()
	return &Conn{
		ID:       id,
		endpoint: endpoint,
		config:   config,
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
			ReadBufferSize:   config.ReadBufferSize,
			WriteBufferSize:  config.WriteBufferSize,
		},
		logger: log.With().
			Str("connection_id", id).
			Str("quiz_id", endpoint.QuizID).
			Str("participant", endpoint.Participant).
			Logger(),
		state:  domain.ConnConnecting,
		send:   make(chan []byte, config.SendBufferSize),
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
}

// Events delivers state changes and inbound frames in arrival order.
// The channel is closed after the final Closed or Errored event.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// State returns the current channel state.
func (c *Conn) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open dials the endpoint. It may be called once per Conn.
func (c *Conn) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.opened {
		c.mu.Unlock()
		return fmt.Errorf("open: %w: channel already used", domain.ErrNotConnected)
	}
	c.opened = true
	c.mu.Unlock()

	c.emit(Event{State: domain.ConnConnecting})

	target, err := c.endpoint.URL()
	if err != nil {
		return c.fail(fmt.Errorf("%w: %v", domain.ErrTransport, err))
	}

	conn, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return c.fail(fmt.Errorf("%w: dial %s: %v", domain.ErrTransport, target, err))
	}

	c.mu.Lock()
	select {
	case <-c.done:
		// Closed while dialing.
		c.mu.Unlock()
		conn.Close()
		close(c.events)
		return fmt.Errorf("open: %w", domain.ErrNotConnected)
	default:
	}
	c.ws = conn
	c.state = domain.ConnOpen
	c.mu.Unlock()

	c.logger.Info().Str("url", target).Msg("quiz channel open")
	c.emit(Event{State: domain.ConnOpen})

	go c.writePump()
	go c.readPump()
	return nil
}

// Send encodes msg and queues it for writing. It fails with ErrNotConnected unless the channel is open.
func (c *Conn) Send(msg protocol.Outbound) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.ConnOpen {
		return fmt.Errorf("send %s: %w", msg.Type(), domain.ErrNotConnected)
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return fmt.Errorf("send %s: %w: send buffer full", msg.Type(), domain.ErrTransport)
	}
}

// Close releases the channel. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.done)
		if c.state == domain.ConnOpen || c.state == domain.ConnConnecting {
			c.state = domain.ConnClosed
		}
		ws := c.ws
		if !c.opened {
			c.opened = true
			close(c.events)
		}
		c.mu.Unlock()

		if ws != nil {
			deadline := time.Now().Add(c.config.WriteTimeout)
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			ws.Close()
		}
		c.logger.Debug().Msg("quiz channel closed")
	})
	return nil
}

func (c *Conn) fail(err error) error {
	c.mu.Lock()
	c.state = domain.ConnErrored
	c.mu.Unlock()

	c.logger.Error().Err(err).Msg("quiz channel failed")
	c.emit(Event{State: domain.ConnErrored, Err: err})
	close(c.events)
	return err
}

func (c *Conn) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// readPump forwards inbound frames until the channel fails or is closed.
func (c *Conn) readPump() {
	defer close(c.events)

	c.ws.SetReadLimit(c.config.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	for {
		msgType, frame, err := c.ws.ReadMessage()
		if err != nil {
			c.finish(err)
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		c.emit(Event{State: domain.ConnOpen, Frame: frame})
	}
}

func (c *Conn) finish(readErr error) {
	select {
	case <-c.done:
		return
	default:
	}

	ev := Event{State: domain.ConnClosed}
	if !websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		ev = Event{State: domain.ConnErrored, Err: fmt.Errorf("%w: read: %v", domain.ErrTransport, readErr)}
		c.logger.Error().Err(readErr).Msg("quiz channel read failed")
	} else {
		c.logger.Info().Msg("quiz channel closed by server")
	}

	c.mu.Lock()
	c.state = ev.State
	c.mu.Unlock()
	c.emit(ev)
}

// writePump serializes writes and keeps the channel alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.abort(err)
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout)); err != nil {
				c.abort(err)
				return
			}
		}
	}
}

// abort closes the socket after a write failure; readPump then reports the error.
func (c *Conn) abort(err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	c.logger.Error().Err(err).Msg("quiz channel write failed")
	c.mu.Lock()
	c.state = domain.ConnErrored
	c.mu.Unlock()
	c.ws.Close()
}
