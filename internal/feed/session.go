package feed

import (
	"time"

	"github.com/alanyoungcy/venuebook/internal/domain"
	"github.com/alanyoungcy/venuebook/internal/venue"
)

// session is the manager's record of one key's current connection. A new
// session replaces the old one on every connect, internal or external; the
// generation tells their transport events apart.
type session struct {
	key        domain.BookKey
	adapter    venue.Adapter
	state      domain.ConnState
	attempts   int
	startedAt  time.Time
	generation uint64
	conn       Conn
	// closing is set when the manager itself closed conn.
	closing bool

	reconnectTask Task
	staleTask     Task
	errorTask     Task
}

func (s *session) cancelTimers() {
	for _, t := range []*Task{&s.reconnectTask, &s.staleTask, &s.errorTask} {
		if *t != nil {
			(*t).Cancel()
			*t = nil
		}
	}
}

// closeConn closes the transport as a manager-initiated close.
func (s *session) closeConn(code int, reason string) error {
	s.closing = true
	if s.conn == nil {
		return nil
	}
	c := s.conn
	s.conn = nil
	return c.Close(code, reason)
}

func displayName(key domain.BookKey) string {
	return string(key.Venue) + " " + key.Instrument
}
