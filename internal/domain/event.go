package domain

import "time"

// EventType tags an Event published on the signal bus.
type EventType string

const (
	EventStatus        EventType = "status"
	EventBook          EventType = "book"
	EventSignalRaised  EventType = "signal_raised"
	EventSignalCleared EventType = "signal_cleared"
	EventSimulation    EventType = "simulation"
	EventSimFailed     EventType = "simulation_failed"
)

// Bus channels. Book channels are suffixed with the book key.
const (
	ChannelBookPrefix = "ch:book:"
	ChannelStatus     = "ch:status"
	ChannelSignal     = "ch:signal"
	ChannelSimulation = "ch:sim"
)

// Event is the JSON envelope fanned out to UI clients.
type Event struct {
	Type       EventType         `json:"type"`
	Venue      Venue             `json:"venue,omitempty"`
	Instrument string            `json:"instrument,omitempty"`
	State      ConnState         `json:"state,omitempty"`
	Book       *OrderBook        `json:"book,omitempty"`
	Signal     *Signal           `json:"signal,omitempty"`
	SignalKind SignalKind        `json:"signal_kind,omitempty"`
	Simulation *SimulationResult `json:"simulation,omitempty"`
	Error      string            `json:"error,omitempty"`
	At         time.Time         `json:"at"`
}
