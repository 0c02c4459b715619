package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"stream-archiver/pkg/models"
)

// SocketState is the live connection's lifecycle state.
type SocketState int32

const (
	StateConnecting SocketState = iota
	StateOpen
	StateAwaitingPong
	StateClosed
)

func (s SocketState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateAwaitingPong:
		return "awaiting_pong"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// frame is the wire envelope of the live chat socket.
type frame struct {
	Type    string          `json:"type"`
	Nonce   string          `json:"nonce,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

var errPongTimeout = errors.New("pong timeout")

// LiveSocket subscribes to a channel's live chat over a websocket and
// delivers messages on a channel. A single event loop per connection
// drives reads, the ping cadence, and the pong deadline; there are no
// callback listeners.
type LiveSocket struct {
	url     string
	channel string
	dialer  *websocket.Dialer
	logger  *slog.Logger

	pingInterval  time.Duration
	pongWait      time.Duration
	reconnectWait time.Duration

	state    atomic.Int32
	messages chan models.ChatMessage
}

// NewLiveSocket creates a live chat source for the given websocket
// endpoint and channel.
func NewLiveSocket(endpoint, channel string) *LiveSocket {
	return &LiveSocket{
		url:           endpoint,
		channel:       channel,
		dialer:        websocket.DefaultDialer,
		logger:        slog.Default(),
		pingInterval:  30 * time.Second,
		pongWait:      10 * time.Second,
		reconnectWait: 2 * time.Second,
		messages:      make(chan models.ChatMessage, 64),
	}
}

// Messages returns the delivery channel. It is closed when Run returns.
func (s *LiveSocket) Messages() <-chan models.ChatMessage {
	return s.messages
}

// State returns the current connection state.
func (s *LiveSocket) State() SocketState {
	return SocketState(s.state.Load())
}

// Run connects and keeps the subscription alive, reconnecting with a
// short backoff on connection loss, until ctx is cancelled.
func (s *LiveSocket) Run(ctx context.Context) error {
	defer close(s.messages)
	defer s.state.Store(int32(StateClosed))

	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("Live chat connection lost, reconnecting", "channel", s.channel, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.reconnectWait):
		}
	}
}

// session runs one connection from dial to close.
func (s *LiveSocket) session(ctx context.Context) error {
	s.state.Store(int32(StateConnecting))

	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	sub := frame{Type: "subscribe", Nonce: uuid.NewString(), Channel: s.channel}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}
	s.state.Store(int32(StateOpen))

	// Reads happen on their own goroutine; everything else is decided
	// in the select loop below.
	frames := make(chan frame)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(frames)
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- f:
			case <-done:
				return
			}
		}
	}()

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()
	pongTimer := time.NewTimer(s.pongWait)
	if !pongTimer.Stop() {
		<-pongTimer.C
	}
	defer pongTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return ctx.Err()

		case f, ok := <-frames:
			if !ok {
				return <-readErr
			}
			switch f.Type {
			case "pong":
				if s.State() == StateAwaitingPong {
					s.state.Store(int32(StateOpen))
					if !pongTimer.Stop() {
						select {
						case <-pongTimer.C:
						default:
						}
					}
				}
			case "message":
				var msg models.ChatMessage
				if err := json.Unmarshal(f.Data, &msg); err != nil {
					s.logger.Debug("Dropping undecodable chat frame", "error", err)
					continue
				}
				select {
				case s.messages <- msg:
				case <-ctx.Done():
					conn.Close()
					return ctx.Err()
				}
			}

		case <-pingTicker.C:
			if err := conn.WriteJSON(frame{Type: "ping"}); err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}
			s.state.Store(int32(StateAwaitingPong))
			pongTimer.Reset(s.pongWait)

		case <-pongTimer.C:
			conn.Close()
			return errPongTimeout
		}
	}
}
