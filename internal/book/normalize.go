package book

import "github.com/alanyoungcy/venuebook/internal/domain"

// Materialize returns the levels of side best-first: bids descending and
// asks ascending.
func Materialize(side *Side, as domain.Side) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, side.Len())
	visit := func(l domain.PriceLevel) bool {
		levels = append(levels, l)
		return true
	}
	if as == domain.SideBuy {
		side.tree.Descend(visit)
	} else {
		side.tree.Ascend(visit)
	}
	return levels
}

// Cumulative annotates levels with the running size total from the top.
func Cumulative(levels []domain.PriceLevel) []domain.DepthPoint {
	out := make([]domain.DepthPoint, len(levels))
	var cum float64
	for i, l := range levels {
		cum += l.Size
		out[i] = domain.DepthPoint{Price: l.Price, Size: l.Size, Cum: cum}
	}
	return out
}

// Mid returns the midpoint of the best bid and best ask.
func Mid(ob domain.OrderBook) (float64, bool) {
	bid, okBid := ob.BestBid()
	ask, okAsk := ob.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return (bid.Price + ask.Price) / 2, true
}

// Spread returns best ask minus best bid.
func Spread(ob domain.OrderBook) (float64, bool) {
	bid, okBid := ob.BestBid()
	ask, okAsk := ob.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return ask.Price - bid.Price, true
}
