package feedtest

import (
	"context"
	"errors"
	"sync"

	"github.com/alanyoungcy/venuebook/internal/feed"
)

// ErrClosed is returned by Conn.Send after Close.
var ErrClosed = errors.New("feedtest: connection closed")

// Transport records every dial and hands back scriptable connections.
type Transport struct {
	mu    sync.Mutex
	conns []*Conn
}

// Dial records the attempt. Nothing is delivered until the test drives it.
func (t *Transport) Dial(_ context.Context, endpoint string, sink func(feed.Event)) feed.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := &Conn{Endpoint: endpoint, sink: sink}
	t.conns = append(t.conns, c)
	return c
}

// Dials returns the number of Dial calls so far.
func (t *Transport) Dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// Last returns the most recent connection, or nil.
func (t *Transport) Last() *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

// Conn is a fake feed.Conn.
type Conn struct {
	Endpoint string

	mu          sync.Mutex
	sink        func(feed.Event)
	sent        [][]byte
	closed      bool
	closeCode   int
	closeReason string
}

func (c *Conn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.sent = append(c.sent, append([]byte(nil), payload...))
	return nil
}

func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	return nil
}

// Sent returns copies of every payload sent.
func (c *Conn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

// Closed reports whether Close was called and with which code.
func (c *Conn) Closed() (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeCode
}

// Open delivers an open event.
func (c *Conn) Open() { c.sink(feed.Event{Kind: feed.EventOpen}) }

// Message delivers an inbound frame.
func (c *Conn) Message(data string) {
	c.sink(feed.Event{Kind: feed.EventMessage, Data: []byte(data)})
}

// Fail delivers an error followed by an abnormal close, the way a dropped
// socket surfaces.
func (c *Conn) Fail(err error) {
	c.sink(feed.Event{Kind: feed.EventError, Err: err})
	c.sink(feed.Event{Kind: feed.EventClose, Code: feed.CloseAbnormal})
}

// Hangup delivers a close with code.
func (c *Conn) Hangup(code int) {
	c.sink(feed.Event{Kind: feed.EventClose, Code: code})
}

var (
	_ feed.Transport = (*Transport)(nil)
	_ feed.Conn      = (*Conn)(nil)
)
