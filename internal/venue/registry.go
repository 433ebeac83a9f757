// Package venue defines the contract every exchange adapter implements and a
// registry the feed manager resolves adapters from.
package venue

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/venuebook/internal/book"
	"github.com/alanyoungcy/venuebook/internal/domain"
)

// Adapter converts one venue's wire format into canonical books.
type Adapter interface {
	// Venue returns the venue this adapter serves.
	Venue() domain.Venue
	// Endpoint returns the websocket URL to dial.
	Endpoint() string
	// SubscribePayload builds the frame that subscribes to instrument's book.
	SubscribePayload(instrument string) ([]byte, error)
	// Parse applies raw to st and returns the resulting canonical book. It
	// reports false for anything that does not yield a book: acks, errors,
	// stale sequence numbers, malformed frames, or an empty result.
	Parse(st *book.State, raw []byte) (domain.OrderBook, bool)
}

// Registry maps venues to adapters. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[domain.Venue]Adapter
}

// NewRegistry returns a registry holding adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[domain.Venue]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for a.Venue().
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Venue()] = a
}

// Get returns the adapter for v or an error wrapping domain.ErrUnknownVenue.
func (r *Registry) Get(v domain.Venue) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[v]
	if !ok {
		return nil, fmt.Errorf("venue: %w: %s", domain.ErrUnknownVenue, v)
	}
	return a, nil
}

// Venues lists the registered venues in name order.
func (r *Registry) Venues() []domain.Venue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Venue, 0, len(r.adapters))
	for v := range r.adapters {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
