// Package booktest generates random level batches and checks adapter output
// against a reference model of the book.
package booktest

import (
	"math/rand/v2"
	"slices"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/venuebook/internal/domain"
)

// Entry is one generated level change. Raw holds the wire values, either
// JSON strings or numbers. Valid entries are the ones a venue would apply.
type Entry struct {
	Price, Size float64
	RawPrice    any
	RawSize     any
	Valid       bool
	// PriceValid is false only when the price itself is malformed.
	PriceValid bool
	// Delete marks a Deribit style [delete, price, size] change.
	Delete bool
}

// Gen produces batches over a narrow price grid so prices repeat often.
type Gen struct {
	r *rand.Rand
}

// NewGen returns a generator with a fixed seed.
func NewGen(seed uint64) *Gen {
	return &Gen{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Intn exposes the generator's randomness to callers building frames.
func (g *Gen) Intn(n int) int { return g.r.IntN(n) }

var junk = []string{"NaN", "Inf", "-Inf", "abc", "", "1e400"}

// Batch returns up to n entries. About one in five sizes is zero and one in
// ten entries carries a malformed or out of range value.
func (g *Gen) Batch(n int) []Entry {
	out := make([]Entry, 0, n)
	for range g.r.IntN(n + 1) {
		out = append(out, g.entry())
	}
	return out
}

func (g *Gen) entry() Entry {
	price := 95 + float64(g.r.IntN(21))*0.5
	size := 0.0
	if g.r.IntN(5) != 0 {
		size = float64(1+g.r.IntN(400)) / 100
	}
	e := Entry{Price: price, Size: size, RawPrice: g.encode(price), RawSize: g.encode(size), Valid: true, PriceValid: true}

	switch g.r.IntN(20) {
	case 0:
		e.RawPrice, e.Valid, e.PriceValid = junk[g.r.IntN(len(junk))], false, false
	case 1:
		e.RawSize, e.Valid = junk[g.r.IntN(len(junk))], false
	case 2:
		e.RawPrice, e.Valid, e.PriceValid = g.encode(-price), false, false
	case 3:
		e.RawSize, e.Valid = g.encode(-size-1), false
	}
	return e
}

func (g *Gen) encode(v float64) any {
	if g.r.IntN(2) == 0 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return v
}

// Model is the reference book: a plain price to size map per side.
type Model struct {
	Bids, Asks map[float64]float64
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{Bids: map[float64]float64{}, Asks: map[float64]float64{}}
}

// Reset clears both sides.
func (m *Model) Reset() {
	clear(m.Bids)
	clear(m.Asks)
}

// Apply applies entries to side the way every venue does. A delete only
// needs a valid price.
func Apply(side map[float64]float64, entries []Entry) {
	for _, e := range entries {
		switch {
		case e.Delete:
			if e.PriceValid {
				delete(side, e.Price)
			}
		case !e.Valid:
		case e.Size == 0:
			delete(side, e.Price)
		default:
			side[e.Price] = e.Size
		}
	}
}

// Levels returns side sorted for the given book side.
func Levels(side map[float64]float64, s domain.Side) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(side))
	for p, sz := range side {
		out = append(out, domain.PriceLevel{Price: p, Size: sz})
	}
	slices.SortFunc(out, func(a, b domain.PriceLevel) int {
		if s == domain.SideBuy {
			return cmpPrice(b.Price, a.Price)
		}
		return cmpPrice(a.Price, b.Price)
	})
	return out
}

func cmpPrice(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// AssertMatches checks the parse result against the model and the canonical
// ordering rules.
func AssertMatches(t *testing.T, m *Model, ob domain.OrderBook, ok bool, step int) {
	t.Helper()
	if len(m.Bids) == 0 && len(m.Asks) == 0 {
		assert.False(t, ok, "step %d: empty book must not be emitted", step)
		return
	}
	require.True(t, ok, "step %d: expected a book", step)
	AssertCanonical(t, ob)
	assert.Equal(t, Levels(m.Bids, domain.SideBuy), orEmpty(ob.Bids), "step %d bids", step)
	assert.Equal(t, Levels(m.Asks, domain.SideSell), orEmpty(ob.Asks), "step %d asks", step)
}

func orEmpty(l []domain.PriceLevel) []domain.PriceLevel {
	if l == nil {
		return []domain.PriceLevel{}
	}
	return l
}

// AssertCanonical checks strict ordering, positive finite prices and
// positive sizes on both sides.
func AssertCanonical(t *testing.T, ob domain.OrderBook) {
	t.Helper()
	for i, l := range ob.Bids {
		assert.Greater(t, l.Price, 0.0)
		assert.Greater(t, l.Size, 0.0)
		if i > 0 {
			assert.Less(t, l.Price, ob.Bids[i-1].Price, "bids not strictly descending")
		}
	}
	for i, l := range ob.Asks {
		assert.Greater(t, l.Price, 0.0)
		assert.Greater(t, l.Size, 0.0)
		if i > 0 {
			assert.Greater(t, l.Price, ob.Asks[i-1].Price, "asks not strictly ascending")
		}
	}
}
