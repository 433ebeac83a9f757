package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/venuebook/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type published struct {
	channel string
	evt     domain.Event
}

type fakeBus struct {
	mu   sync.Mutex
	msgs []published
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	var evt domain.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, published{channel: channel, evt: evt})
	return nil
}

func (b *fakeBus) Subscribe(context.Context, ...string) (<-chan domain.BusMessage, error) {
	return make(chan domain.BusMessage), nil
}

func (b *fakeBus) all() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.msgs...)
}

type fakeCache struct {
	mu    sync.Mutex
	books map[domain.BookKey]domain.OrderBook
}

func (c *fakeCache) SetSnapshot(_ context.Context, ob domain.OrderBook) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.books == nil {
		c.books = make(map[domain.BookKey]domain.OrderBook)
	}
	c.books[ob.Key] = ob
	return nil
}

func (c *fakeCache) GetSnapshot(_ context.Context, key domain.BookKey) (domain.OrderBook, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ob, ok := c.books[key]
	if !ok {
		return domain.OrderBook{}, domain.ErrNotFound
	}
	return ob, nil
}

func (c *fakeCache) GetBBO(context.Context, domain.BookKey) (float64, float64, error) {
	return 0, 0, domain.ErrNotFound
}

// flush delivers everything queued on p synchronously.
func flush(t *testing.T, p *Publisher) {
	t.Helper()
	for {
		select {
		case out := <-p.queue:
			p.deliver(context.Background(), out)
		default:
			return
		}
	}
}

func requireChannel(t *testing.T, msgs []published, channel string, typ domain.EventType) domain.Event {
	t.Helper()
	for _, m := range msgs {
		if m.channel == channel && m.evt.Type == typ {
			return m.evt
		}
	}
	require.Failf(t, "event not published", "%s on %s", typ, channel)
	return domain.Event{}
}
