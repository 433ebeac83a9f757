// Package simulator estimates how a hypothetical order would fill against an
// order book snapshot. It performs no I/O and reads no clock.
package simulator

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/venuebook/internal/domain"
)

var (
	hundred = decimal.NewFromInt(100)
	bpsUnit = decimal.NewFromInt(10_000)
)

// Simulate sweeps the side of ob opposite to side, best price first. Limit
// orders stop at the first level that violates limitPrice without consuming
// it. limitPrice is ignored for market orders.
func Simulate(ob domain.OrderBook, side domain.Side, orderType domain.OrderType, limitPrice, quantity float64) domain.Fill {
	levels := ob.Asks
	if side == domain.SideSell {
		levels = ob.Bids
	}

	var best decimal.Decimal
	if len(levels) > 0 {
		best = decimal.NewFromFloat(levels[0].Price)
	}
	limit := decimal.NewFromFloat(limitPrice)
	qty := decimal.NewFromFloat(quantity)

	remaining := qty
	filled := decimal.Zero
	notional := decimal.Zero
	touched := 0

	for _, lvl := range levels {
		if !remaining.IsPositive() {
			break
		}
		price := decimal.NewFromFloat(lvl.Price)
		if orderType == domain.OrderTypeLimit && violates(side, price, limit) {
			break
		}
		take := decimal.Min(remaining, decimal.NewFromFloat(lvl.Size))
		filled = filled.Add(take)
		notional = notional.Add(take.Mul(price))
		remaining = remaining.Sub(take)
		touched++
	}

	fillPct := decimal.Zero
	if !qty.IsZero() {
		fillPct = filled.Div(qty).Mul(hundred)
	}

	var avg decimal.Decimal
	switch {
	case filled.IsPositive():
		avg = notional.Div(filled)
	case orderType == domain.OrderTypeLimit:
		avg = limit
	default:
		avg = best
	}

	return domain.Fill{
		FillPercent:   fillPct.InexactFloat64(),
		AveragePrice:  avg.InexactFloat64(),
		SlippageBps:   slippage(side, avg, best).InexactFloat64(),
		LevelsTouched: touched,
	}
}

func violates(side domain.Side, price, limit decimal.Decimal) bool {
	if side == domain.SideBuy {
		return price.GreaterThan(limit)
	}
	return price.LessThan(limit)
}

// slippage is positive when the fill is worse than the best opposing price.
func slippage(side domain.Side, avg, best decimal.Decimal) decimal.Decimal {
	if best.IsZero() {
		return decimal.Zero
	}
	diff := avg.Sub(best)
	if side == domain.SideSell {
		diff = best.Sub(avg)
	}
	return diff.Div(best).Mul(bpsUnit)
}
