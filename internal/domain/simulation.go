package domain

import (
	"fmt"
	"strings"
	"time"
)

// Side is the direction of a hypothetical order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType selects market or limit semantics for a simulation.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// SimulationRequest is a hypothetical order to evaluate against the current
// book for Key. LimitPrice is only meaningful for limit orders.
type SimulationRequest struct {
	Key        BookKey       `json:"-"`
	Side       Side          `json:"side"`
	OrderType  OrderType     `json:"order_type"`
	LimitPrice float64       `json:"limit_price,omitempty"`
	Quantity   float64       `json:"quantity"`
	Delay      time.Duration `json:"delay_ns"`
}

// Validate checks the request invariants. Every failure wraps
// ErrInvalidSimulation.
// MaxSimulationDelay bounds how far ahead a delayed simulation may be
// scheduled.
const MaxSimulationDelay = 24 * time.Hour

func (r SimulationRequest) Validate() error {
	var errs []string

	switch r.Side {
	case SideBuy, SideSell:
	default:
		errs = append(errs, fmt.Sprintf("side must be buy or sell, got %q", r.Side))
	}

	switch r.OrderType {
	case OrderTypeMarket:
	case OrderTypeLimit:
		if r.LimitPrice <= 0 {
			errs = append(errs, "limit_price must be > 0 for limit orders")
		}
	default:
		errs = append(errs, fmt.Sprintf("order_type must be market or limit, got %q", r.OrderType))
	}

	if r.Quantity <= 0 {
		errs = append(errs, "quantity must be > 0")
	}
	if r.Delay < 0 || r.Delay > MaxSimulationDelay {
		errs = append(errs, fmt.Sprintf("delay must be between 0 and %s", MaxSimulationDelay))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSimulation, strings.Join(errs, "; "))
	}
	return nil
}

// Fill is the numeric outcome of sweeping a book.
type Fill struct {
	FillPercent   float64 `json:"fill_percent"`
	AveragePrice  float64 `json:"average_price"`
	SlippageBps   float64 `json:"slippage_bps"`
	LevelsTouched int     `json:"levels_touched"`
}

// SimulationResult is a completed simulation as recorded in history.
type SimulationResult struct {
	ID         string            `json:"id"`
	Venue      Venue             `json:"venue"`
	Instrument string            `json:"instrument"`
	Request    SimulationRequest `json:"request"`
	Fill
	// Warning is set when the estimate crosses the configured slippage or
	// impact thresholds.
	Warning    bool      `json:"warning"`
	ProducedAt time.Time `json:"produced_at"`
}

// PendingSimulation is a request waiting for its execution delay to elapse.
type PendingSimulation struct {
	ID         string            `json:"id"`
	Venue      Venue             `json:"venue"`
	Instrument string            `json:"instrument"`
	Request    SimulationRequest `json:"request"`
	DueAt      time.Time         `json:"due_at"`
}
