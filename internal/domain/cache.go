package domain

import (
	"context"
	"time"
)

// OrderbookCache mirrors the latest canonical book per key.
type OrderbookCache interface {
	SetSnapshot(ctx context.Context, ob OrderBook) error
	GetSnapshot(ctx context.Context, key BookKey) (OrderBook, error)
	GetBBO(ctx context.Context, key BookKey) (bestBid, bestAsk float64, err error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BusMessage is one payload received from the bus, tagged with the concrete
// channel it was published on.
type BusMessage struct {
	Channel string
	Payload []byte
}

// SignalBus provides pub/sub fan-out of events. Subscribe accepts exact
// channel names and glob patterns such as "ch:book:*" in one call.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (<-chan BusMessage, error)
}
