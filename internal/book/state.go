// Package book holds per-venue local book state and turns it into canonical
// order books.
package book

import (
	"math"
	"time"

	"github.com/google/btree"

	"github.com/alanyoungcy/venuebook/internal/domain"
)

const treeDegree = 32

func byPrice(a, b domain.PriceLevel) bool { return a.Price < b.Price }

// Side is one side of a local book, kept in ascending price order. Levels
// never hold a non-positive size.
type Side struct {
	tree *btree.BTreeG[domain.PriceLevel]
}

// NewSide returns a side seeded with levels.
func NewSide(levels ...domain.PriceLevel) *Side {
	s := &Side{tree: btree.NewG(treeDegree, byPrice)}
	for _, l := range levels {
		s.Apply(l.Price, l.Size)
	}
	return s
}

// Apply upserts size at price; a non-positive size removes the level.
// Non-finite values and non-positive prices are ignored, since the tree
// cannot order them.
func (s *Side) Apply(price, size float64) {
	if !validPrice(price) || math.IsNaN(size) || math.IsInf(size, 0) {
		return
	}
	if size <= 0 {
		s.Delete(price)
		return
	}
	s.tree.ReplaceOrInsert(domain.PriceLevel{Price: price, Size: size})
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 1)
}

// Delete removes the level at price.
func (s *Side) Delete(price float64) {
	if !validPrice(price) {
		return
	}
	s.tree.Delete(domain.PriceLevel{Price: price})
}

// Reset empties the side in place.
func (s *Side) Reset() {
	s.tree.Clear(true)
}

// Len returns the number of levels.
func (s *Side) Len() int {
	return s.tree.Len()
}

// Levels returns every level, lowest price first.
func (s *Side) Levels() []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, s.tree.Len())
	s.tree.Ascend(func(l domain.PriceLevel) bool {
		out = append(out, l)
		return true
	})
	return out
}

// State is the mutable book a venue adapter maintains between messages.
// Cursor is the last applied venue sequence number, or zero when the venue
// has not provided one.
type State struct {
	Bids   *Side
	Asks   *Side
	Cursor int64
}

// NewState returns an empty State.
func NewState() *State {
	return &State{Bids: NewSide(), Asks: NewSide()}
}

// Reset clears both sides. The cursor is left for the caller to set.
func (s *State) Reset() {
	s.Bids.Reset()
	s.Asks.Reset()
}

// Book materializes the state into a canonical book stamped with ts. It
// reports false when both sides are empty.
func (s *State) Book(key domain.BookKey, ts time.Time) (domain.OrderBook, bool) {
	ob := domain.OrderBook{
		Key:        key,
		Bids:       Materialize(s.Bids, domain.SideBuy),
		Asks:       Materialize(s.Asks, domain.SideSell),
		ObservedAt: ts,
	}
	if ob.Empty() {
		return domain.OrderBook{}, false
	}
	return ob, true
}
