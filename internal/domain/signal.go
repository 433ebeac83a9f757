package domain

import "time"

// SignalKind identifies one transient condition raised against a book.
type SignalKind string

const (
	SignalConnecting SignalKind = "connecting"
	SignalUnstable   SignalKind = "unstable"
	SignalStale      SignalKind = "stale"
	SignalDegraded   SignalKind = "degraded"
	SignalError      SignalKind = "error"
)

// Severity grades a signal for display and notification routing.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Signal is a keyed, clearable condition. At most one signal of each kind is
// active per book at a time.
type Signal struct {
	Key      BookKey    `json:"key"`
	Kind     SignalKind `json:"kind"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	RaisedAt time.Time  `json:"raised_at"`
}

// ID returns the stable identity of the signal within its book.
func (s Signal) ID() string {
	return s.Key.String() + "/" + string(s.Kind)
}

// FeedSink receives every collaborator-facing output of the feed manager.
// Calls arrive on the manager's event loop and must not block.
type FeedSink interface {
	Status(key BookKey, state ConnState)
	Book(ob OrderBook)
	RaiseSignal(sig Signal)
	ClearSignal(key BookKey, kind SignalKind)
}

// BookStatus is the collaborator's view of one watched book.
type BookStatus struct {
	Venue      Venue     `json:"venue"`
	Instrument string    `json:"instrument"`
	State      ConnState `json:"state"`
	Levels     int       `json:"levels"`
	LastUpdate time.Time `json:"last_update,omitempty"`
}
