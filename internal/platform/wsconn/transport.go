// Package wsconn is the gorilla/websocket implementation of feed.Transport.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/venuebook/internal/domain"
	"github.com/alanyoungcy/venuebook/internal/feed"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	handshakeTimeout = 15 * time.Second
)

// ErrNotOpen is returned by Send before the handshake completes.
var ErrNotOpen = errors.New("wsconn: connection not open")

// Transport dials venue websockets.
type Transport struct {
	dialer *websocket.Dialer
	logger *slog.Logger
}

// New returns a Transport with the default dialer settings.
func New(logger *slog.Logger) *Transport {
	return &Transport{
		dialer: &websocket.Dialer{
			HandshakeTimeout:  handshakeTimeout,
			EnableCompression: true,
		},
		logger: logger.With(slog.String("component", "wsconn")),
	}
}

// Dial starts connecting to endpoint in the background and returns
// immediately. Events are delivered to sink from the connection's goroutines.
func (t *Transport) Dial(ctx context.Context, endpoint string, sink func(feed.Event)) feed.Conn {
	ctx, cancel := context.WithCancel(ctx)
	c := &conn{
		endpoint: endpoint,
		sink:     sink,
		cancel:   cancel,
		done:     make(chan struct{}),
		logger:   t.logger.With(slog.String("endpoint", endpoint)),
	}
	go c.run(ctx, t.dialer)
	return c
}

type conn struct {
	endpoint string
	sink     func(feed.Event)
	cancel   context.CancelFunc
	done     chan struct{}
	logger   *slog.Logger

	mu          sync.Mutex
	ws          *websocket.Conn
	closed      bool
	closeCode   int
	closeReason string
}

func (c *conn) run(ctx context.Context, dialer *websocket.Dialer) {
	ws, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		if !c.isClosed() {
			c.sink(feed.Event{Kind: feed.EventError, Err: fmt.Errorf("wsconn: dial %s: %w", c.endpoint, err)})
		}
		code, reason := c.localClose(feed.CloseAbnormal, "dial failed")
		c.sink(feed.Event{Kind: feed.EventClose, Code: code, Reason: reason})
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = ws.Close()
		c.sink(feed.Event{Kind: feed.EventClose, Code: c.closeCode, Reason: c.closeReason})
		return
	}
	c.ws = ws
	c.mu.Unlock()

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.sink(feed.Event{Kind: feed.EventOpen})
	go c.pingLoop(ws)
	c.readLoop(ws)
}

// readLoop delivers frames until the socket fails or is closed.
func (c *conn) readLoop(ws *websocket.Conn) {
	defer close(c.done)
	defer ws.Close()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.finish(err)
			return
		}
		c.sink(feed.Event{Kind: feed.EventMessage, Data: data})
	}
}

func (c *conn) finish(err error) {
	if c.isClosed() {
		code, reason := c.localClose(feed.CloseNormal, "")
		c.sink(feed.Event{Kind: feed.EventClose, Code: code, Reason: reason})
		return
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		c.logger.Info("peer closed", slog.Int("code", ce.Code), slog.String("reason", ce.Text))
		c.sink(feed.Event{Kind: feed.EventClose, Code: ce.Code, Reason: ce.Text})
		return
	}
	c.sink(feed.Event{Kind: feed.EventError, Err: fmt.Errorf("wsconn: read: %w: %w", domain.ErrWSDisconnect, err)})
	c.sink(feed.Event{Kind: feed.EventClose, Code: feed.CloseAbnormal, Reason: err.Error()})
}

// pingLoop sends periodic ping messages to keep the WebSocket alive.
func (c *conn) pingLoop(ws *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (c *conn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("wsconn: send: %w", domain.ErrWSDisconnect)
	}
	if c.ws == nil {
		return ErrNotOpen
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("wsconn: send: %w", err)
	}
	return nil
}

// Close sends a close frame with code and tears the socket down. A pending
// dial is abandoned.
func (c *conn) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	ws := c.ws
	c.mu.Unlock()

	c.cancel()
	if ws == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	if err := ws.Close(); err != nil {
		return fmt.Errorf("wsconn: close: %w", err)
	}
	return nil
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// localClose returns the code and reason Close was called with, or the
// given fallback when the close was not requested locally.
func (c *conn) localClose(code int, reason string) (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.closeCode, c.closeReason
	}
	return code, reason
}

var _ feed.Transport = (*Transport)(nil)
