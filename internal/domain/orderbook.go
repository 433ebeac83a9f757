package domain

import (
	"fmt"
	"strings"
	"time"
)

// Venue identifies an upstream market-data venue.
type Venue string

const (
	VenueOKX     Venue = "OKX"
	VenueBybit   Venue = "Bybit"
	VenueDeribit Venue = "Deribit"
)

// ParseVenue resolves a venue name case-insensitively. It returns
// ErrUnknownVenue for anything outside the supported set.
func ParseVenue(s string) (Venue, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "okx":
		return VenueOKX, nil
	case "bybit":
		return VenueBybit, nil
	case "deribit":
		return VenueDeribit, nil
	}
	return Venue(s), fmt.Errorf("%w: %q", ErrUnknownVenue, s)
}

// BookKey identifies one canonical order book: a venue plus the instrument
// name the collaborator asked for.
type BookKey struct {
	Venue      Venue  `json:"venue"`
	Instrument string `json:"instrument"`
}

// String renders the key as "venue:instrument".
func (k BookKey) String() string {
	return string(k.Venue) + ":" + k.Instrument
}

// ParseBookKey is the inverse of BookKey.String.
func ParseBookKey(s string) (BookKey, error) {
	venue, instrument, ok := strings.Cut(s, ":")
	if !ok || venue == "" || instrument == "" {
		return BookKey{}, fmt.Errorf("domain: malformed book key %q", s)
	}
	return BookKey{Venue: Venue(venue), Instrument: instrument}, nil
}

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook is the canonical, venue-agnostic book. Bids are strictly
// descending by price, asks strictly ascending, and no level has zero size.
// Values are never mutated after they are produced.
type OrderBook struct {
	Key        BookKey      `json:"-"`
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
	ObservedAt time.Time    `json:"observed_at"`
}

// BestBid returns the highest bid, if any.
func (ob OrderBook) BestBid() (PriceLevel, bool) {
	if len(ob.Bids) == 0 {
		return PriceLevel{}, false
	}
	return ob.Bids[0], true
}

// BestAsk returns the lowest ask, if any.
func (ob OrderBook) BestAsk() (PriceLevel, bool) {
	if len(ob.Asks) == 0 {
		return PriceLevel{}, false
	}
	return ob.Asks[0], true
}

// Levels returns the total number of visible levels across both sides.
func (ob OrderBook) Levels() int {
	return len(ob.Bids) + len(ob.Asks)
}

// Empty reports whether both sides are empty.
func (ob OrderBook) Empty() bool {
	return len(ob.Bids) == 0 && len(ob.Asks) == 0
}

// DepthPoint is one level annotated with the running size total from the
// top of the book.
type DepthPoint struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
	Cum   float64 `json:"cum"`
}

// ConnState is the lifecycle state of one book's feed connection.
type ConnState string

const (
	ConnIdle         ConnState = "idle"
	ConnConnecting   ConnState = "connecting"
	ConnOpen         ConnState = "open"
	ConnError        ConnState = "error"
	ConnClosed       ConnState = "closed"
	ConnReconnecting ConnState = "reconnecting"
)
