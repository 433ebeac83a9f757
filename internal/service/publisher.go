package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/venuebook/internal/domain"
)

const (
	defaultQueueSize = 1024
	publishTimeout   = 2 * time.Second
)

// Listener observes every event after it has been published.
type Listener func(ctx context.Context, evt domain.Event)

type outbound struct {
	channel string
	evt     domain.Event
}

// Publisher moves events off the feed loop. Enqueue never blocks; Run
// mirrors books into the cache, publishes JSON on the bus and fans out to
// listeners. Either backend may be nil.
type Publisher struct {
	bus       domain.SignalBus
	cache     domain.OrderbookCache
	listeners []Listener
	queue     chan outbound
	onDrop    func()
	logger    *slog.Logger
}

// NewPublisher creates a Publisher with a bounded queue.
func NewPublisher(bus domain.SignalBus, cache domain.OrderbookCache, logger *slog.Logger) *Publisher {
	return &Publisher{
		bus:    bus,
		cache:  cache,
		queue:  make(chan outbound, defaultQueueSize),
		onDrop: func() {},
		logger: logger.With(slog.String("component", "publisher")),
	}
}

// AddListener registers l. Call before Run.
func (p *Publisher) AddListener(l Listener) {
	p.listeners = append(p.listeners, l)
}

// OnDrop sets a hook called whenever the queue is full.
func (p *Publisher) OnDrop(fn func()) {
	if fn != nil {
		p.onDrop = fn
	}
}

// Enqueue schedules evt for channel. It drops the event if the queue is full.
func (p *Publisher) Enqueue(channel string, evt domain.Event) {
	select {
	case p.queue <- outbound{channel: channel, evt: evt}:
	default:
		p.onDrop()
		p.logger.Warn("publisher: queue full, dropping event",
			slog.String("channel", channel),
			slog.String("type", string(evt.Type)),
		)
	}
}

// Run drains the queue until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out := <-p.queue:
			p.deliver(ctx, out)
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, out outbound) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if out.evt.Type == domain.EventBook && out.evt.Book != nil && p.cache != nil {
		if err := p.cache.SetSnapshot(ctx, *out.evt.Book); err != nil {
			p.logger.WarnContext(ctx, "publisher: cache snapshot failed",
				slog.String("key", out.evt.Book.Key.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	if p.bus != nil {
		payload, err := json.Marshal(out.evt)
		if err != nil {
			p.logger.ErrorContext(ctx, "publisher: marshal event failed",
				slog.String("type", string(out.evt.Type)),
				slog.String("error", err.Error()),
			)
		} else if err := p.bus.Publish(ctx, out.channel, payload); err != nil {
			p.logger.WarnContext(ctx, "publisher: publish failed",
				slog.String("channel", out.channel),
				slog.String("error", err.Error()),
			)
		}
	}

	for _, l := range p.listeners {
		l(ctx, out.evt)
	}
}
