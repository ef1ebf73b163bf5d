package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"marketplace-messaging/internal/observability"
)

// ConnState is the transport connection lifecycle state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateBackoff
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

var ErrNotConnected = errors.New("transport not connected")

const (
	backoffBase          = 500 * time.Millisecond
	backoffCap           = 30 * time.Second
	maxReconnectAttempts = 6
)

// Conn owns the single live websocket session for a client. Inbound frames
// go to the handler; only the send path writes outbound frames. At most one
// live session exists at a time: a generation counter invalidates read loops
// and dials that belong to superseded sessions, so racing Connect/Close
// calls cannot leave two sockets open.
type Conn struct {
	url     string
	token   string
	dialer  *websocket.Dialer
	handler func(data []byte)

	mu    sync.Mutex
	state ConnState
	ws    *websocket.Conn
	gen   int
	ctx   context.Context
}

// NewConn builds a Conn for the websocket URL. The handler receives every
// inbound frame; it must not block.
func NewConn(wsURL, token string, handler func(data []byte)) *Conn {
	return &Conn{
		url:     wsURL,
		token:   token,
		dialer:  websocket.DefaultDialer,
		handler: handler,
		state:   StateDisconnected,
		ctx:     context.Background(),
	}
}

// State reports the current connection state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the session. Calling Connect while a session is live or
// being established is a no-op, so rapid repeated calls cannot race a
// second socket into existence. The context bounds the dial and any later
// reconnect attempts.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.ctx = ctx
	gen := c.gen
	c.mu.Unlock()

	if err := c.dial(ctx, gen); err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// dial performs one connection attempt. It only installs the new socket if
// the generation is unchanged, discarding sessions superseded by Close.
func (c *Conn) dial(ctx context.Context, gen int) error {
	ws, resp, err := c.dialer.DialContext(ctx, c.url+"?token="+c.token, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial transport: %w", err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		ws.Close()
		return errors.New("connect superseded")
	}
	c.gen++
	liveGen := c.gen
	c.ws = ws
	c.state = StateConnected
	c.mu.Unlock()

	observability.SetClientConnected(true)
	go c.readLoop(liveGen, ws)
	return nil
}

// Send transmits one frame on the live session. It fails fast when the
// session is not established; it never falls back on its own.
func (c *Conn) Send(v any) error {
	c.mu.Lock()
	if c.state != StateConnected || c.ws == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	ws := c.ws
	c.mu.Unlock()

	if err := ws.WriteJSON(v); err != nil {
		return fmt.Errorf("transport send: %w", err)
	}
	return nil
}

// Close tears down the session. Safe to call when already disconnected or
// mid-connect.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.gen++
	c.state = StateDisconnected
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	observability.SetClientConnected(false)
	if ws != nil {
		return ws.Close()
	}
	return nil
}

func (c *Conn) readLoop(gen int, ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.onReadError(gen, err)
			return
		}
		c.handler(data)
	}
}

// onReadError transitions a failed live session into backoff. Read loops of
// superseded sessions exit silently.
func (c *Conn) onReadError(gen int, err error) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	if c.ws != nil {
		c.ws.Close()
		c.ws = nil
	}
	c.state = StateBackoff
	ctx := c.ctx
	c.mu.Unlock()

	observability.SetClientConnected(false)
	log.Printf("transport read error, reconnecting: %v", err)
	go c.reconnect(ctx, gen)
}

// reconnect retries with capped exponential backoff. A Close or context
// cancellation during backoff stops the loop.
func (c *Conn) reconnect(ctx context.Context, gen int) {
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			c.abandonReconnect(gen)
			return
		case <-time.After(nextBackoff(attempt)):
		}

		c.mu.Lock()
		if c.gen != gen || c.state != StateBackoff {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		observability.IncClientReconnect()
		err := c.dial(ctx, gen)
		if err == nil {
			log.Printf("transport reconnected after %d attempt(s)", attempt)
			return
		}
		log.Printf("transport reconnect attempt %d/%d failed: %v", attempt, maxReconnectAttempts, err)
	}

	c.abandonReconnect(gen)
	log.Printf("transport reconnect attempts exhausted")
}

func (c *Conn) abandonReconnect(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen && c.state == StateBackoff {
		c.state = StateDisconnected
	}
}

// nextBackoff doubles the delay per attempt, capped at backoffCap.
func nextBackoff(attempt int) time.Duration {
	d := backoffBase << (attempt - 1)
	if d > backoffCap || d <= 0 {
		return backoffCap
	}
	return d
}
