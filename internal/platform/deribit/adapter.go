// Package deribit adapts the Deribit JSON-RPC book channel.
package deribit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/alanyoungcy/venuebook/internal/book"
	"github.com/alanyoungcy/venuebook/internal/domain"
	"github.com/alanyoungcy/venuebook/internal/venue"
)

// DefaultEndpoint is the public v2 websocket.
const DefaultEndpoint = "wss://www.deribit.com/ws/api/v2"

var channelRe = regexp.MustCompile(`^book\.([^.]+)`)

// Adapter implements venue.Adapter for Deribit.
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

// New returns a Deribit adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{endpoint: DefaultEndpoint, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) Venue() domain.Venue { return domain.VenueDeribit }

func (a *Adapter) Endpoint() string { return a.endpoint }

// NormalizeInstrument upper-cases bare perpetual names such as btcperpetual
// into BTC-PERPETUAL. Names containing '-' or '_' pass through.
func NormalizeInstrument(instrument string) string {
	if strings.ContainsAny(instrument, "-_") {
		return instrument
	}
	upper := strings.ToUpper(instrument)
	if !strings.Contains(upper, "PERPETUAL") {
		return instrument
	}
	return strings.Replace(upper, "PERPETUAL", "", 1) + "-PERPETUAL"
}

// Channel returns the book channel for instrument.
func Channel(instrument string) string {
	return "book." + NormalizeInstrument(instrument) + ".none.20.100ms"
}

func (a *Adapter) SubscribePayload(instrument string) ([]byte, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "public/subscribe",
		Params:  rpcParams{Channels: []string{Channel(instrument)}},
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("deribit: marshal subscribe: %w", err)
	}
	return b, nil
}

// Parse applies a book notification. A frame without prev_change_id is a
// full snapshot; otherwise it is a change list. Changes whose change_id does
// not advance the cursor are discarded.
func (a *Adapter) Parse(st *book.State, raw []byte) (domain.OrderBook, bool) {
	var msg rpcMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.OrderBook{}, false
	}
	if msg.Error != nil {
		return domain.OrderBook{}, false
	}
	if msg.ID != nil && len(msg.Result) > 0 {
		return domain.OrderBook{}, false
	}
	if msg.Method != "subscription" || msg.Params == nil || msg.Params.Data == nil {
		return domain.OrderBook{}, false
	}
	if msg.Params.Channel == "" {
		return domain.OrderBook{}, false
	}

	data := msg.Params.Data
	instrument := data.InstrumentName
	if m := channelRe.FindStringSubmatch(msg.Params.Channel); m != nil {
		instrument = m[1]
	}
	if instrument == "" {
		return domain.OrderBook{}, false
	}

	incremental := data.PrevChangeID != nil && *data.PrevChangeID != 0
	if incremental {
		if data.ChangeID != nil && st.Cursor > 0 && *data.ChangeID <= st.Cursor {
			return domain.OrderBook{}, false
		}
		applyChanges(st.Bids, data.Bids)
		applyChanges(st.Asks, data.Asks)
	} else {
		st.Reset()
		applyChanges(st.Bids, data.Bids)
		applyChanges(st.Asks, data.Asks)
	}
	if data.ChangeID != nil {
		st.Cursor = *data.ChangeID
	}

	key := domain.BookKey{Venue: domain.VenueDeribit, Instrument: instrument}
	return st.Book(key, venue.Millis(data.Timestamp, a.now))
}

// applyChanges handles both [price, size] and [action, price, size]
// entries. Non-positive prices are ignored.
func applyChanges(side *book.Side, entries [][]json.RawMessage) {
	for _, e := range entries {
		action, priceRaw, sizeRaw, ok := splitEntry(e)
		if !ok {
			continue
		}
		price, ok := venue.Number(priceRaw)
		if !ok || price <= 0 {
			continue
		}
		if action == "delete" {
			side.Delete(price)
			continue
		}
		size, ok := venue.Number(sizeRaw)
		if !ok || size < 0 {
			continue
		}
		side.Apply(price, size)
	}
}

func splitEntry(e []json.RawMessage) (action string, price, size json.RawMessage, ok bool) {
	switch {
	case len(e) >= 3 && isString(e[0]):
		if err := json.Unmarshal(e[0], &action); err != nil {
			return "", nil, nil, false
		}
		return action, e[1], e[2], true
	case len(e) == 2:
		return "change", e[0], e[1], true
	}
	return "", nil, nil, false
}

func isString(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '"'
}

var _ venue.Adapter = (*Adapter)(nil)
