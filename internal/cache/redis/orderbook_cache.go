package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/venuebook/internal/domain"
	"github.com/redis/go-redis/v9"
)

// OrderbookCache implements domain.OrderbookCache using Redis sorted sets
// and hashes, one group of keys per book.
//
// Key schema (k = "venue:instrument"):
//
//	book:{k}:bids     - sorted set of bid prices (score = price)
//	book:{k}:asks     - sorted set of ask prices (score = price)
//	book:{k}:bid:size - hash mapping price -> size for bids
//	book:{k}:ask:size - hash mapping price -> size for asks
//	book:{k}:bbo      - hash with fields "bid" and "ask"
//	book:{k}:meta     - hash with "ts" (observed at, unix nanos)
type OrderbookCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewOrderbookCache creates an OrderbookCache. A zero ttl keeps keys until
// the next snapshot replaces them.
func NewOrderbookCache(c *Client, ttl time.Duration) *OrderbookCache {
	return &OrderbookCache{rdb: c.Underlying(), ttl: ttl}
}

type bookKeys struct {
	bids, asks, bidSize, askSize, bbo, meta string
}

func keysFor(key domain.BookKey) bookKeys {
	p := "book:" + key.String()
	return bookKeys{
		bids:    p + ":bids",
		asks:    p + ":asks",
		bidSize: p + ":bid:size",
		askSize: p + ":ask:size",
		bbo:     p + ":bbo",
		meta:    p + ":meta",
	}
}

func (k bookKeys) all() []string {
	return []string{k.bids, k.asks, k.bidSize, k.askSize, k.bbo, k.meta}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// SetSnapshot atomically replaces the cached book for ob.Key.
func (oc *OrderbookCache) SetSnapshot(ctx context.Context, ob domain.OrderBook) error {
	k := keysFor(ob.Key)
	pipe := oc.rdb.TxPipeline()

	pipe.Del(ctx, k.all()...)

	for _, lvl := range ob.Bids {
		p := formatFloat(lvl.Price)
		pipe.ZAdd(ctx, k.bids, redis.Z{Score: lvl.Price, Member: p})
		pipe.HSet(ctx, k.bidSize, p, formatFloat(lvl.Size))
	}
	for _, lvl := range ob.Asks {
		p := formatFloat(lvl.Price)
		pipe.ZAdd(ctx, k.asks, redis.Z{Score: lvl.Price, Member: p})
		pipe.HSet(ctx, k.askSize, p, formatFloat(lvl.Size))
	}

	if bid, ok := ob.BestBid(); ok {
		pipe.HSet(ctx, k.bbo, "bid", formatFloat(bid.Price))
	}
	if ask, ok := ob.BestAsk(); ok {
		pipe.HSet(ctx, k.bbo, "ask", formatFloat(ask.Price))
	}
	pipe.HSet(ctx, k.meta, "ts", strconv.FormatInt(ob.ObservedAt.UnixNano(), 10))

	if oc.ttl > 0 {
		for _, key := range k.all() {
			pipe.Expire(ctx, key, oc.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set orderbook snapshot %s: %w", ob.Key, err)
	}
	return nil
}

// GetSnapshot rebuilds the cached book for key. It returns domain.ErrNotFound
// if nothing is cached.
func (oc *OrderbookCache) GetSnapshot(ctx context.Context, key domain.BookKey) (domain.OrderBook, error) {
	k := keysFor(key)
	pipe := oc.rdb.Pipeline()

	bidsCmd := pipe.ZRevRangeWithScores(ctx, k.bids, 0, -1)
	asksCmd := pipe.ZRangeWithScores(ctx, k.asks, 0, -1)
	bidSizeCmd := pipe.HGetAll(ctx, k.bidSize)
	askSizeCmd := pipe.HGetAll(ctx, k.askSize)
	metaCmd := pipe.HGetAll(ctx, k.meta)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.OrderBook{}, fmt.Errorf("redis: get orderbook snapshot %s: %w", key, err)
	}

	meta, _ := metaCmd.Result()
	if len(meta) == 0 {
		return domain.OrderBook{}, domain.ErrNotFound
	}

	ob := domain.OrderBook{Key: key}
	if ts, err := strconv.ParseInt(meta["ts"], 10, 64); err == nil {
		ob.ObservedAt = time.Unix(0, ts).UTC()
	}

	bidSizes, _ := bidSizeCmd.Result()
	bidsZ, _ := bidsCmd.Result()
	ob.Bids = levelsFrom(bidsZ, bidSizes)

	askSizes, _ := askSizeCmd.Result()
	asksZ, _ := asksCmd.Result()
	ob.Asks = levelsFrom(asksZ, askSizes)

	return ob, nil
}

func levelsFrom(zs []redis.Z, sizes map[string]string) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(zs))
	for _, z := range zs {
		p, ok := z.Member.(string)
		if !ok {
			continue
		}
		size, err := strconv.ParseFloat(sizes[p], 64)
		if err != nil || size <= 0 {
			continue
		}
		out = append(out, domain.PriceLevel{Price: z.Score, Size: size})
	}
	return out
}

// GetBBO returns the cached best bid and ask. It returns domain.ErrNotFound
// if no BBO is cached.
func (oc *OrderbookCache) GetBBO(ctx context.Context, key domain.BookKey) (bestBid, bestAsk float64, err error) {
	vals, err := oc.rdb.HGetAll(ctx, keysFor(key).bbo).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis: get bbo %s: %w", key, err)
	}
	if len(vals) == 0 {
		return 0, 0, domain.ErrNotFound
	}
	if s, ok := vals["bid"]; ok {
		bestBid, _ = strconv.ParseFloat(s, 64)
	}
	if s, ok := vals["ask"]; ok {
		bestAsk, _ = strconv.ParseFloat(s, 64)
	}
	return bestBid, bestAsk, nil
}

var _ domain.OrderbookCache = (*OrderbookCache)(nil)
