package service

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/venuebook/internal/book"
	"github.com/alanyoungcy/venuebook/internal/domain"
)

// BookMetrics receives book-side gauges.
type BookMetrics interface {
	ConnState(key domain.BookKey, state domain.ConnState)
	BookDepth(ob domain.OrderBook)
	SignalRaised(kind domain.SignalKind)
	SignalCleared(kind domain.SignalKind)
}

type nopBookMetrics struct{}

func (nopBookMetrics) ConnState(domain.BookKey, domain.ConnState) {}
func (nopBookMetrics) BookDepth(domain.OrderBook)                 {}
func (nopBookMetrics) SignalRaised(domain.SignalKind)             {}
func (nopBookMetrics) SignalCleared(domain.SignalKind)            {}

// BookView is a book together with its derived depth curve and touch
// statistics.
type BookView struct {
	Venue      domain.Venue        `json:"venue"`
	Instrument string              `json:"instrument"`
	Book       domain.OrderBook    `json:"book"`
	BidDepth   []domain.DepthPoint `json:"bid_depth"`
	AskDepth   []domain.DepthPoint `json:"ask_depth"`
	Mid        float64             `json:"mid,omitempty"`
	Spread     float64             `json:"spread,omitempty"`
}

// BookService is the feed's sink. It keeps the latest canonical book, the
// connection status and the active signals per key, and forwards every
// change to the Publisher. Sink methods run on the feed loop; queries may
// come from any goroutine.
type BookService struct {
	pub     *Publisher
	metrics BookMetrics
	logger  *slog.Logger

	mu      sync.RWMutex
	books   map[domain.BookKey]domain.OrderBook
	status  map[domain.BookKey]*domain.BookStatus
	signals map[string]domain.Signal
}

// NewBookService creates a BookService. metrics may be nil.
func NewBookService(pub *Publisher, metrics BookMetrics, logger *slog.Logger) *BookService {
	if metrics == nil {
		metrics = nopBookMetrics{}
	}
	return &BookService{
		pub:     pub,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "book_service")),
		books:   make(map[domain.BookKey]domain.OrderBook),
		status:  make(map[domain.BookKey]*domain.BookStatus),
		signals: make(map[string]domain.Signal),
	}
}

// Status implements domain.FeedSink.
func (s *BookService) Status(key domain.BookKey, state domain.ConnState) {
	s.mu.Lock()
	st := s.statusFor(key)
	st.State = state
	s.mu.Unlock()

	s.metrics.ConnState(key, state)
	s.logger.Debug("book_service: status",
		slog.String("key", key.String()),
		slog.String("state", string(state)),
	)
	s.pub.Enqueue(domain.ChannelStatus, domain.Event{
		Type:       domain.EventStatus,
		Venue:      key.Venue,
		Instrument: key.Instrument,
		State:      state,
		At:         time.Now().UTC(),
	})
}

// Book implements domain.FeedSink.
func (s *BookService) Book(ob domain.OrderBook) {
	s.mu.Lock()
	s.books[ob.Key] = ob
	st := s.statusFor(ob.Key)
	st.Levels = ob.Levels()
	st.LastUpdate = ob.ObservedAt
	s.mu.Unlock()

	s.metrics.BookDepth(ob)
	s.pub.Enqueue(domain.ChannelBookPrefix+ob.Key.String(), domain.Event{
		Type:       domain.EventBook,
		Venue:      ob.Key.Venue,
		Instrument: ob.Key.Instrument,
		Book:       &ob,
		At:         ob.ObservedAt,
	})
}

// RaiseSignal implements domain.FeedSink.
func (s *BookService) RaiseSignal(sig domain.Signal) {
	s.mu.Lock()
	_, existed := s.signals[sig.ID()]
	s.signals[sig.ID()] = sig
	s.mu.Unlock()

	if !existed {
		s.metrics.SignalRaised(sig.Kind)
	}
	s.logger.Info("book_service: signal raised",
		slog.String("key", sig.Key.String()),
		slog.String("kind", string(sig.Kind)),
		slog.String("message", sig.Message),
	)
	s.pub.Enqueue(domain.ChannelSignal, domain.Event{
		Type:       domain.EventSignalRaised,
		Venue:      sig.Key.Venue,
		Instrument: sig.Key.Instrument,
		Signal:     &sig,
		SignalKind: sig.Kind,
		At:         sig.RaisedAt,
	})
}

// ClearSignal implements domain.FeedSink.
func (s *BookService) ClearSignal(key domain.BookKey, kind domain.SignalKind) {
	id := domain.Signal{Key: key, Kind: kind}.ID()

	s.mu.Lock()
	_, existed := s.signals[id]
	delete(s.signals, id)
	s.mu.Unlock()

	if !existed {
		return
	}
	s.metrics.SignalCleared(kind)
	s.pub.Enqueue(domain.ChannelSignal, domain.Event{
		Type:       domain.EventSignalCleared,
		Venue:      key.Venue,
		Instrument: key.Instrument,
		SignalKind: kind,
		At:         time.Now().UTC(),
	})
}

// statusFor must be called with mu held.
func (s *BookService) statusFor(key domain.BookKey) *domain.BookStatus {
	st, ok := s.status[key]
	if !ok {
		st = &domain.BookStatus{Venue: key.Venue, Instrument: key.Instrument, State: domain.ConnIdle}
		s.status[key] = st
	}
	return st
}

// Latest returns the most recent book for key. It returns domain.ErrNoBook
// when no book has been received.
func (s *BookService) Latest(key domain.BookKey) (domain.OrderBook, error) {
	s.mu.RLock()
	ob, ok := s.books[key]
	s.mu.RUnlock()
	if !ok {
		return domain.OrderBook{}, fmt.Errorf("book_service: %s: %w", key, domain.ErrNoBook)
	}
	return ob, nil
}

// View returns the latest book for key with cumulative depth and mid.
func (s *BookService) View(key domain.BookKey) (BookView, error) {
	ob, err := s.Latest(key)
	if err != nil {
		return BookView{}, err
	}
	v := BookView{
		Venue:      key.Venue,
		Instrument: key.Instrument,
		Book:       ob,
		BidDepth:   book.Cumulative(ob.Bids),
		AskDepth:   book.Cumulative(ob.Asks),
	}
	v.Mid, _ = book.Mid(ob)
	v.Spread, _ = book.Spread(ob)
	return v, nil
}

// Statuses returns every known book status ordered by key.
func (s *BookService) Statuses() []domain.BookStatus {
	s.mu.RLock()
	out := make([]domain.BookStatus, 0, len(s.status))
	for _, st := range s.status {
		out = append(out, *st)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.BookStatus) int {
		if c := strings.Compare(string(a.Venue), string(b.Venue)); c != 0 {
			return c
		}
		return strings.Compare(a.Instrument, b.Instrument)
	})
	return out
}

// Signals returns the active signals, oldest first.
func (s *BookService) Signals() []domain.Signal {
	s.mu.RLock()
	out := make([]domain.Signal, 0, len(s.signals))
	for _, sig := range s.signals {
		out = append(out, sig)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.Signal) int {
		if c := a.RaisedAt.Compare(b.RaisedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID(), b.ID())
	})
	return out
}

var _ domain.FeedSink = (*BookService)(nil)
