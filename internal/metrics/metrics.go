// Package metrics exposes feed, book and simulation counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/alanyoungcy/venuebook/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var connStates = []domain.ConnState{
	domain.ConnIdle,
	domain.ConnConnecting,
	domain.ConnOpen,
	domain.ConnError,
	domain.ConnClosed,
	domain.ConnReconnecting,
}

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	messagesParsed  *prometheus.CounterVec
	messagesDropped *prometheus.CounterVec
	reconnects      *prometheus.CounterVec
	connState       *prometheus.GaugeVec
	bookDepth       *prometheus.GaugeVec
	signalsActive   *prometheus.GaugeVec
	simulations     *prometheus.CounterVec
	slippage        prometheus.Histogram
	busDropped      prometheus.Counter
}

// New builds the collectors under namespace and registers them together
// with the Go runtime collector.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		messagesParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_messages_parsed_total",
			Help:      "Venue frames that produced a canonical book.",
		}, []string{"venue"}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_messages_dropped_total",
			Help:      "Venue frames ignored as acks, malformed or stale.",
		}, []string{"venue"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_reconnects_total",
			Help:      "Scheduled reconnects by cause.",
		}, []string{"venue", "reason"}),
		connState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_connection_state",
			Help:      "1 for the current connection state of each book.",
		}, []string{"venue", "instrument", "state"}),
		bookDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "book_depth_levels",
			Help:      "Visible levels per book side.",
		}, []string{"venue", "instrument", "side"}),
		signalsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "signals_active",
			Help:      "Currently raised signals by kind.",
		}, []string{"kind"}),
		simulations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulations_total",
			Help:      "Completed simulations.",
		}, []string{"venue", "side", "order_type"}),
		slippage: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "simulation_slippage_bps",
			Help:      "Simulated slippage against the touch, in basis points.",
			Buckets:   []float64{0.5, 1, 2, 5, 12, 25, 50, 100, 250},
		}),
		busDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_events_dropped_total",
			Help:      "Events dropped because the publish queue was full.",
		}),
	}

	reg.MustRegister(
		m.messagesParsed,
		m.messagesDropped,
		m.reconnects,
		m.connState,
		m.bookDepth,
		m.signalsActive,
		m.simulations,
		m.slippage,
		m.busDropped,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) MessageParsed(v domain.Venue) {
	m.messagesParsed.WithLabelValues(string(v)).Inc()
}

func (m *Metrics) MessageDropped(v domain.Venue) {
	m.messagesDropped.WithLabelValues(string(v)).Inc()
}

func (m *Metrics) Reconnect(v domain.Venue, reason string) {
	m.reconnects.WithLabelValues(string(v), reason).Inc()
}

// ConnState sets the one-hot state gauge for key.
func (m *Metrics) ConnState(key domain.BookKey, state domain.ConnState) {
	for _, s := range connStates {
		val := 0.0
		if s == state {
			val = 1
		}
		m.connState.WithLabelValues(string(key.Venue), key.Instrument, string(s)).Set(val)
	}
}

// BookDepth records the visible level counts of ob.
func (m *Metrics) BookDepth(ob domain.OrderBook) {
	m.bookDepth.WithLabelValues(string(ob.Key.Venue), ob.Key.Instrument, "bid").Set(float64(len(ob.Bids)))
	m.bookDepth.WithLabelValues(string(ob.Key.Venue), ob.Key.Instrument, "ask").Set(float64(len(ob.Asks)))
}

func (m *Metrics) SignalRaised(kind domain.SignalKind) {
	m.signalsActive.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) SignalCleared(kind domain.SignalKind) {
	m.signalsActive.WithLabelValues(string(kind)).Dec()
}

func (m *Metrics) Simulation(res domain.SimulationResult) {
	m.simulations.WithLabelValues(string(res.Venue), string(res.Request.Side), string(res.Request.OrderType)).Inc()
	m.slippage.Observe(res.SlippageBps)
}

func (m *Metrics) EventDropped() {
	m.busDropped.Inc()
}
