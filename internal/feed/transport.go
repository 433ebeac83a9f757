package feed

import (
	"context"
	"fmt"
)

// Close codes used by the manager.
const (
	CloseNormal   = 1000
	CloseAbnormal = 1006
)

// EventKind tags a transport Event.
type EventKind int

const (
	EventOpen EventKind = iota + 1
	EventMessage
	EventError
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one lifecycle notification from a transport connection.
type Event struct {
	Kind   EventKind
	Data   []byte
	Err    error
	Code   int
	Reason string
}

// Conn is an established or establishing transport connection.
type Conn interface {
	Send(payload []byte) error
	Close(code int, reason string) error
}

// Transport opens connections. Dial returns immediately; the outcome arrives
// on sink as Open or Error followed by Close. sink may be called from any
// goroutine.
type Transport interface {
	Dial(ctx context.Context, endpoint string, sink func(Event)) Conn
}
