// Package feed owns venue connections: one session per book key, driven by
// transport events and timers that all run on a single Scheduler.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/venuebook/internal/book"
	"github.com/alanyoungcy/venuebook/internal/domain"
	"github.com/alanyoungcy/venuebook/internal/venue"
)

// Metrics receives feed counters. All methods are called on the loop.
type Metrics interface {
	MessageParsed(v domain.Venue)
	MessageDropped(v domain.Venue)
	Reconnect(v domain.Venue, reason string)
}

type nopMetrics struct{}

func (nopMetrics) MessageParsed(domain.Venue)     {}
func (nopMetrics) MessageDropped(domain.Venue)    {}
func (nopMetrics) Reconnect(domain.Venue, string) {}

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	Scheduler Scheduler
	Transport Transport
	Registry  *venue.Registry
	Sink      domain.FeedSink
	Options   Options
	Metrics   Metrics
	Logger    *slog.Logger
}

// Manager reconciles connect and disconnect intents with live transports.
// Its exported methods may be called from any goroutine; everything else
// runs on the scheduler.
type Manager struct {
	sched     Scheduler
	transport Transport
	registry  *venue.Registry
	sink      domain.FeedSink
	opts      Options
	metrics   Metrics
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// loop-only state
	sessions map[domain.BookKey]*session
	books    map[domain.BookKey]*book.State
	signals  map[domain.BookKey]map[domain.SignalKind]bool
	gen      uint64
}

// NewManager creates a Manager. Zero-valued Options fields are not filled
// in; pass DefaultOptions() and override what you need.
func NewManager(cfg ManagerConfig) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		sched:     cfg.Scheduler,
		transport: cfg.Transport,
		registry:  cfg.Registry,
		sink:      cfg.Sink,
		opts:      cfg.Options,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		ctx:       ctx,
		cancel:    cancel,
		sessions:  make(map[domain.BookKey]*session),
		books:     make(map[domain.BookKey]*book.State),
		signals:   make(map[domain.BookKey]map[domain.SignalKind]bool),
	}
	if m.metrics == nil {
		m.metrics = nopMetrics{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With(slog.String("component", "feed_manager"))
	if m.opts.Backoff == nil {
		m.opts.Backoff = DefaultOptions().Backoff
	}
	return m
}

// Connect requests a live book for key. Any existing connection for key is
// torn down first; connect supersedes, it never stacks.
func (m *Manager) Connect(key domain.BookKey) {
	m.sched.Post(func() { m.connect(key, true) })
}

// Disconnect closes key's connection and forgets its bookkeeping.
func (m *Manager) Disconnect(key domain.BookKey) {
	m.sched.Post(func() { m.disconnect(key) })
}

// Close disconnects every key and cancels in-flight dials.
func (m *Manager) Close() {
	done := make(chan struct{})
	m.sched.Post(func() {
		for key := range m.sessions {
			m.disconnect(key)
		}
		close(done)
	})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		m.logger.Warn("feed manager close timed out")
	}
	m.cancel()
}

// ---------------------------------------------------------------------------
// Intents
// ---------------------------------------------------------------------------

func (m *Manager) connect(key domain.BookKey, external bool) {
	now := m.sched.Now()
	cold := true
	attempts := 0
	startedAt := now
	var pendingWarning Task

	if prev, ok := m.sessions[key]; ok {
		if external {
			m.disconnect(key)
		} else {
			cold = false
			attempts = prev.attempts
			startedAt = prev.startedAt
			// The unstable warning survives the retry; only open or
			// disconnect cancels it.
			pendingWarning, prev.errorTask = prev.errorTask, nil
			prev.cancelTimers()
			_ = prev.closeConn(CloseNormal, "reconnect")
		}
	}

	adapter, err := m.registry.Get(key.Venue)
	if err != nil {
		if pendingWarning != nil {
			pendingWarning.Cancel()
		}
		m.logger.Warn("connect rejected", slog.String("key", key.String()), slog.String("error", err.Error()))
		m.sink.Status(key, domain.ConnError)
		m.raise(key, domain.SignalError, domain.SeverityError, fmt.Sprintf("Unknown venue: %s", key.Venue))
		return
	}

	m.gen++
	s := &session{
		key:        key,
		adapter:    adapter,
		state:      domain.ConnConnecting,
		attempts:   attempts,
		startedAt:  startedAt,
		generation: m.gen,
		errorTask:  pendingWarning,
	}
	m.sessions[key] = s

	m.sink.Status(key, domain.ConnConnecting)
	if cold {
		m.raise(key, domain.SignalConnecting, domain.SeverityInfo, fmt.Sprintf("Connecting to %s...", displayName(key)))
	}
	m.logger.Info("connecting",
		slog.String("key", key.String()),
		slog.String("endpoint", adapter.Endpoint()),
		slog.Int("attempt", attempts),
	)

	gen := s.generation
	s.conn = m.transport.Dial(m.ctx, adapter.Endpoint(), func(ev Event) {
		m.sched.Post(func() { m.handle(key, gen, ev) })
	})
}

func (m *Manager) disconnect(key domain.BookKey) {
	s, known := m.sessions[key]
	if known {
		s.cancelTimers()
		if err := s.closeConn(CloseNormal, "Normal closure"); err != nil {
			m.logger.Debug("close transport", slog.String("key", key.String()), slog.String("error", err.Error()))
		}
		s.state = domain.ConnClosed
		delete(m.sessions, key)
		m.logger.Info("disconnected", slog.String("key", key.String()))
	}
	if _, ok := m.signals[key]; ok {
		known = true
		for kind := range m.signals[key] {
			m.sink.ClearSignal(key, kind)
		}
		delete(m.signals, key)
	}
	if known {
		m.sink.Status(key, domain.ConnClosed)
	}
}

// ---------------------------------------------------------------------------
// Transport events
// ---------------------------------------------------------------------------

func (m *Manager) handle(key domain.BookKey, gen uint64, ev Event) {
	s, ok := m.sessions[key]
	if !ok || s.generation != gen {
		return
	}
	switch ev.Kind {
	case EventOpen:
		m.onOpen(s)
	case EventMessage:
		m.onMessage(s, ev.Data)
	case EventError:
		m.onError(s, ev.Err)
	case EventClose:
		m.onClose(s, ev.Code, ev.Reason)
	}
}

func (m *Manager) onOpen(s *session) {
	s.state = domain.ConnOpen
	s.attempts = 0
	s.startedAt = m.sched.Now()
	if s.errorTask != nil {
		s.errorTask.Cancel()
		s.errorTask = nil
	}
	for _, kind := range []domain.SignalKind{domain.SignalConnecting, domain.SignalError, domain.SignalUnstable, domain.SignalStale} {
		m.clear(s.key, kind)
	}

	// Venues number updates from scratch on every new subscription, so a
	// cursor carried over from the previous connection would reject them.
	m.bookState(s.key).Cursor = 0

	payload, err := s.adapter.SubscribePayload(s.key.Instrument)
	if err != nil {
		m.logger.Error("build subscribe payload", slog.String("key", s.key.String()), slog.String("error", err.Error()))
	} else if s.conn != nil {
		if err := s.conn.Send(payload); err != nil {
			m.logger.Warn("send subscribe", slog.String("key", s.key.String()), slog.String("error", err.Error()))
		}
	}

	m.armStale(s)
	m.sink.Status(s.key, domain.ConnOpen)
	m.logger.Info("connection open", slog.String("key", s.key.String()))
}

func (m *Manager) onMessage(s *session, data []byte) {
	ob, ok := s.adapter.Parse(m.bookState(s.key), data)
	if !ok {
		m.metrics.MessageDropped(s.key.Venue)
		return
	}
	m.metrics.MessageParsed(s.key.Venue)
	ob.Key = s.key

	m.sink.Book(ob)
	m.armStale(s)
	m.checkDepth(s.key, ob)
}

func (m *Manager) onError(s *session, err error) {
	s.state = domain.ConnError
	m.sink.Status(s.key, domain.ConnError)

	attrs := []any{slog.String("key", s.key.String()), slog.Int("attempts", s.attempts)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	m.logger.Warn("transport error", attrs...)

	elapsed := m.sched.Now().Sub(s.startedAt)
	if elapsed <= m.opts.GracePeriod || s.attempts < m.opts.RetryThreshold || s.errorTask != nil {
		return
	}
	key := s.key
	s.errorTask = m.sched.After(m.opts.ErrorSignalDelay, func() {
		cur, ok := m.sessions[key]
		if !ok {
			return
		}
		cur.errorTask = nil
		m.raise(key, domain.SignalUnstable, domain.SeverityWarning,
			fmt.Sprintf("Unstable connection to %s, retrying", displayName(key)))
	})
}

func (m *Manager) onClose(s *session, code int, reason string) {
	if s.staleTask != nil {
		s.staleTask.Cancel()
		s.staleTask = nil
	}
	s.conn = nil

	if s.closing {
		if s.reconnectTask == nil {
			s.state = domain.ConnClosed
		}
		return
	}

	delay := m.opts.retryDelay(s.attempts)
	s.attempts++
	s.state = domain.ConnReconnecting
	m.sink.Status(s.key, domain.ConnReconnecting)
	m.metrics.Reconnect(s.key.Venue, "close")
	m.logger.Info("connection closed, reconnecting",
		slog.String("key", s.key.String()),
		slog.Int("code", code),
		slog.String("reason", reason),
		slog.Int("attempt", s.attempts),
		slog.Duration("delay", delay),
	)

	key := s.key
	s.reconnectTask = m.sched.After(delay, func() {
		if m.sessions[key] != s {
			return
		}
		s.reconnectTask = nil
		m.connect(key, false)
	})
}

// ---------------------------------------------------------------------------
// Watchdog and depth quality
// ---------------------------------------------------------------------------

func (m *Manager) armStale(s *session) {
	if s.staleTask != nil {
		s.staleTask.Cancel()
	}
	s.staleTask = m.sched.After(m.opts.StaleWindow, func() {
		if m.sessions[s.key] != s {
			return
		}
		s.staleTask = nil
		m.onStale(s)
	})
}

func (m *Manager) onStale(s *session) {
	key := s.key
	m.raise(key, domain.SignalStale, domain.SeverityWarning,
		fmt.Sprintf("Connection slow. Reconnecting %s...", displayName(key)))
	s.state = domain.ConnError
	m.sink.Status(key, domain.ConnError)
	m.metrics.Reconnect(key.Venue, "stale")
	m.logger.Warn("no book update within window, forcing reconnect",
		slog.String("key", key.String()),
		slog.Duration("window", m.opts.StaleWindow),
	)

	s.cancelTimers()
	if err := s.closeConn(CloseNormal, "stale"); err != nil {
		m.logger.Debug("close stale transport", slog.String("key", key.String()), slog.String("error", err.Error()))
	}
	s.reconnectTask = m.sched.After(m.opts.StaleReconnectDelay, func() {
		if m.sessions[key] != s {
			return
		}
		s.reconnectTask = nil
		m.connect(key, false)
	})
}

func (m *Manager) checkDepth(key domain.BookKey, ob domain.OrderBook) {
	bids, asks := len(ob.Bids), len(ob.Asks)
	switch m.opts.Depth.checkDepth(bids, asks) {
	case depthDegraded:
		m.raise(key, domain.SignalDegraded, domain.SeverityWarning,
			fmt.Sprintf("Limited depth for %s (%db/%da)", displayName(key), bids, asks))
	case depthHealthy:
		m.clear(key, domain.SignalDegraded)
	}
}

// ---------------------------------------------------------------------------
// Signals and local state
// ---------------------------------------------------------------------------

// raise emits sig unless a signal of the same kind is already active.
func (m *Manager) raise(key domain.BookKey, kind domain.SignalKind, sev domain.Severity, msg string) {
	active := m.signals[key]
	if active == nil {
		active = make(map[domain.SignalKind]bool)
		m.signals[key] = active
	}
	if active[kind] {
		return
	}
	active[kind] = true
	m.sink.RaiseSignal(domain.Signal{
		Key:      key,
		Kind:     kind,
		Severity: sev,
		Message:  msg,
		RaisedAt: m.sched.Now(),
	})
}

func (m *Manager) clear(key domain.BookKey, kind domain.SignalKind) {
	if !m.signals[key][kind] {
		return
	}
	delete(m.signals[key], kind)
	m.sink.ClearSignal(key, kind)
}

// bookState returns key's local state, creating it on first use. States
// outlive sessions.
func (m *Manager) bookState(key domain.BookKey) *book.State {
	st, ok := m.books[key]
	if !ok {
		st = book.NewState()
		m.books[key] = st
	}
	return st
}
