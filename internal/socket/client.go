// Package socket owns the persistent streaming connection to the call
// server: the authenticated handshake, the bounded reconnect loop, and
// the decode-and-dispatch of inbound event envelopes.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dialdesk/console/internal/auth"
	"github.com/dialdesk/console/internal/types"
)

// ErrNotConnected is returned when an outbound emit is attempted while
// the channel is down
var ErrNotConnected = errors.New("socket: not connected")

const defaultWriteTimeout = 10 * time.Second

// Options configures the connection lifecycle
type Options struct {
	// URL is the websocket endpoint (ws:// or wss://)
	URL string
	// ReconnectAttempts bounds consecutive failed dials before the
	// client gives up and reports the server unreachable
	ReconnectAttempts int
	// ReconnectDelay is the fixed wait between attempts
	ReconnectDelay time.Duration
	// WriteTimeout bounds a single outbound frame write
	WriteTimeout time.Duration
}

// Client maintains the websocket connection for one operator session
type Client struct {
	opts       Options
	credential *auth.Credential
	logger     zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool // permanently closed, no reconnects
	status    types.ConnectionStatus

	onEnvelope func(types.Envelope)
	onConnect  func()
	onStatus   func(types.ConnectionStatus)

	reconnects int64
}

// NewClient creates a client; handlers must be registered before Run
func NewClient(opts Options, credential *auth.Credential, logger zerolog.Logger) *Client {
	if opts.ReconnectAttempts <= 0 {
		opts.ReconnectAttempts = 10
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &Client{
		opts:       opts,
		credential: credential,
		logger:     logger.With().Str("component", "socket").Logger(),
		status:     types.StatusDisconnected,
	}
}

// OnEnvelope registers the inbound envelope handler. Envelopes are
// delivered one at a time from a single goroutine; the handler runs to
// completion before the next frame is read.
func (c *Client) OnEnvelope(fn func(types.Envelope)) {
	c.mu.Lock()
	c.onEnvelope = fn
	c.mu.Unlock()
}

// OnConnect registers a callback fired after every successful (re)connect
// and identify handshake. This is where snapshot reconciliation hooks in:
// events missed while disconnected are unrecoverable on the channel itself.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// OnStatus registers a callback fired on every connection status change
func (c *Client) OnStatus(fn func(types.ConnectionStatus)) {
	c.mu.Lock()
	c.onStatus = fn
	c.mu.Unlock()
}

// Run dials and maintains the connection until ctx is cancelled, the
// client is disconnected, or the attempt bound is exhausted.
func (c *Client) Run(ctx context.Context) {
	attempts := 0

	for {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		select {
		case <-ctx.Done():
			c.Disconnect()
			return
		default:
		}

		c.setStatus(types.StatusConnecting)
		if err := c.dial(ctx); err != nil {
			attempts++
			if attempts >= c.opts.ReconnectAttempts {
				c.logger.Error().Err(err).Int("attempts", attempts).Msg("server unreachable, giving up")
				c.setStatus(types.StatusUnreachable)
				return
			}
			c.logger.Warn().Err(err).
				Int("attempt", attempts).
				Dur("retry_in", c.opts.ReconnectDelay).
				Msg("connection failed, retrying")
			c.setStatus(types.StatusDisconnected)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.opts.ReconnectDelay):
			}
			continue
		}

		// Reset the attempt count on a successful connection
		attempts = 0
		c.setStatus(types.StatusConnected)

		if err := c.identify(); err != nil {
			c.logger.Warn().Err(err).Msg("identify handshake failed")
		}

		c.mu.Lock()
		onConnect := c.onConnect
		c.mu.Unlock()
		if onConnect != nil {
			onConnect()
		}

		c.readLoop(ctx)

		// Connection lost; tear down and schedule a reconnect
		c.mu.Lock()
		c.connected = false
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		closed = c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		c.reconnects++
		c.setStatus(types.StatusDisconnected)
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.opts.ReconnectDelay):
		}
	}
}

// dial establishes the websocket connection, presenting the bearer token
// in the handshake headers. The token never appears in the URL.
func (c *Client) dial(ctx context.Context) error {
	token, err := c.credential.Token()
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.logger.Debug().Msg("websocket connected")
	return nil
}

// identify announces the operator's agent id and extension so the server
// can target agent-specific events at this session
func (c *Client) identify() error {
	return c.Emit(types.CommandIdentify, types.IdentifyCommand{
		AgentID:   c.credential.AgentID(),
		Extension: c.credential.Extension(),
	})
}

// readLoop reads frames until the connection drops. Each envelope is
// fully handled before the next read, so handlers never observe the
// store mid-mutation.
func (c *Client) readLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		conn := c.conn
		handler := c.onEnvelope
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Debug().Err(err).Msg("read error, connection lost")
			}
			return
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn().Err(err).Msg("undecodable frame dropped")
			continue
		}
		if env.Event == "" {
			c.logger.Warn().Msg("frame without event name dropped")
			continue
		}

		if handler != nil {
			handler(env)
		}
	}
}

// Emit sends an outbound event envelope with a fresh correlation id
func (c *Client) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	env := types.Envelope{Event: event, ID: uuid.NewString(), Payload: data}
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", event, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.connected {
		return ErrNotConnected
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

// IsConnected reports whether the channel is currently up
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Status returns the current connection status
func (c *Client) Status() types.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Reconnects returns how many times an established connection was lost
func (c *Client) Reconnects() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnects
}

// Disconnect permanently tears down the connection and drops all
// registered handlers so no callback leaks across sessions
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.status = types.StatusDisconnected
	c.onEnvelope = nil
	c.onConnect = nil
	c.onStatus = nil
}

func (c *Client) setStatus(status types.ConnectionStatus) {
	c.mu.Lock()
	if c.status == status {
		c.mu.Unlock()
		return
	}
	c.status = status
	onStatus := c.onStatus
	c.mu.Unlock()

	if onStatus != nil {
		onStatus(status)
	}
}
