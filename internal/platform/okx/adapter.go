// Package okx adapts the OKX v5 public books channel.
package okx

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/venuebook/internal/book"
	"github.com/alanyoungcy/venuebook/internal/domain"
	"github.com/alanyoungcy/venuebook/internal/venue"
)

// DefaultEndpoint is the public v5 websocket.
const DefaultEndpoint = "wss://ws.okx.com:8443/ws/v5/public"

const (
	actionSnapshot = "snapshot"
	actionUpdate   = "update"
)

// Adapter implements venue.Adapter for OKX.
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

// New returns an OKX adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{endpoint: DefaultEndpoint, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) Venue() domain.Venue { return domain.VenueOKX }

func (a *Adapter) Endpoint() string { return a.endpoint }

// NormalizeInstrument turns a concatenated USDT pair such as BTCUSDT into the
// dashed form OKX expects. Already dashed names pass through.
func NormalizeInstrument(instrument string) string {
	if strings.Contains(instrument, "-") || !strings.Contains(instrument, "USDT") {
		return instrument
	}
	return strings.Replace(instrument, "USDT", "", 1) + "-USDT"
}

// SubscribePayload builds the books channel subscription.
func (a *Adapter) SubscribePayload(instrument string) ([]byte, error) {
	req := subscribeRequest{
		Op:   "subscribe",
		Args: []subscribeArg{{Channel: "books", InstID: NormalizeInstrument(instrument)}},
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("okx: marshal subscribe: %w", err)
	}
	return b, nil
}

// Parse applies a books frame. OKX publishes no sequence field on this
// channel, so updates are applied in arrival order.
func (a *Adapter) Parse(st *book.State, raw []byte) (domain.OrderBook, bool) {
	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.OrderBook{}, false
	}

	if msg.Event != "" {
		// subscribe acks and error events
		return domain.OrderBook{}, false
	}

	if len(msg.Data) == 0 {
		return domain.OrderBook{}, false
	}
	if msg.Arg == nil || msg.Arg.InstID == "" {
		return domain.OrderBook{}, false
	}

	data := msg.Data[0]
	switch msg.Action {
	case actionSnapshot:
		st.Reset()
	case actionUpdate:
	default:
		return domain.OrderBook{}, false
	}
	venue.ApplyPairs(st.Bids, data.Bids)
	venue.ApplyPairs(st.Asks, data.Asks)

	ts, _ := strconv.ParseInt(data.Ts, 10, 64)
	key := domain.BookKey{Venue: domain.VenueOKX, Instrument: msg.Arg.InstID}
	return st.Book(key, venue.Millis(ts, a.now))
}

var _ venue.Adapter = (*Adapter)(nil)
