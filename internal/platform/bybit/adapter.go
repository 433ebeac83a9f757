// Package bybit adapts the Bybit v5 public orderbook topic.
package bybit

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/alanyoungcy/venuebook/internal/book"
	"github.com/alanyoungcy/venuebook/internal/domain"
	"github.com/alanyoungcy/venuebook/internal/venue"
)

// DefaultEndpoint is the public linear websocket.
const DefaultEndpoint = "wss://stream.bybit.com/v5/public/linear"

// Depth is the orderbook depth subscribed to.
const Depth = 200

var topicRe = regexp.MustCompile(`^orderbook\.\d+\.(.+)$`)

// Adapter implements venue.Adapter for Bybit.
type Adapter struct {
	endpoint string
	now      func() time.Time
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithEndpoint overrides the websocket URL.
func WithEndpoint(url string) Option {
	return func(a *Adapter) {
		if url != "" {
			a.endpoint = url
		}
	}
}

// WithClock sets the clock used when a frame carries no timestamp.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// New returns a Bybit adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{endpoint: DefaultEndpoint, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) Venue() domain.Venue { return domain.VenueBybit }

func (a *Adapter) Endpoint() string { return a.endpoint }

// Topic returns the orderbook topic for symbol.
func Topic(symbol string) string {
	return fmt.Sprintf("orderbook.%d.%s", Depth, symbol)
}

func (a *Adapter) SubscribePayload(instrument string) ([]byte, error) {
	b, err := json.Marshal(subscribeRequest{Op: "subscribe", Args: []string{Topic(instrument)}})
	if err != nil {
		return nil, fmt.Errorf("bybit: marshal subscribe: %w", err)
	}
	return b, nil
}

// Parse applies an orderbook frame. Frames whose update id does not advance
// the cursor are discarded without touching st.
func (a *Adapter) Parse(st *book.State, raw []byte) (domain.OrderBook, bool) {
	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.OrderBook{}, false
	}
	if msg.Op == "subscribe" && msg.Success != nil {
		return domain.OrderBook{}, false
	}
	if msg.Topic == "" || msg.Data == nil || msg.Type == "" {
		return domain.OrderBook{}, false
	}
	m := topicRe.FindStringSubmatch(msg.Topic)
	if m == nil {
		return domain.OrderBook{}, false
	}
	symbol := m[1]

	u := msg.Data.U
	if u != nil && *u <= st.Cursor && st.Cursor > 0 {
		return domain.OrderBook{}, false
	}

	switch msg.Type {
	case "snapshot":
		st.Reset()
	case "delta":
	default:
		return domain.OrderBook{}, false
	}
	venue.ApplyPairs(st.Bids, msg.Data.B)
	venue.ApplyPairs(st.Asks, msg.Data.A)
	if u != nil {
		st.Cursor = *u
	}

	key := domain.BookKey{Venue: domain.VenueBybit, Instrument: symbol}
	return st.Book(key, venue.Millis(msg.Ts, a.now))
}

var _ venue.Adapter = (*Adapter)(nil)
