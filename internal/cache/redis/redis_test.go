package redis

import (
	"testing"
	"time"

	"github.com/alanyoungcy/venuebook/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestKeysFor(t *testing.T) {
	k := keysFor(domain.BookKey{Venue: domain.VenueOKX, Instrument: "BTCUSDT"})
	assert.Equal(t, "book:OKX:BTCUSDT:bids", k.bids)
	assert.Equal(t, "book:OKX:BTCUSDT:ask:size", k.askSize)
	assert.Equal(t, "book:OKX:BTCUSDT:meta", k.meta)
	assert.Len(t, k.all(), 6)
}

func TestLevelsFrom(t *testing.T) {
	zs := []redis.Z{
		{Score: 101, Member: "101"},
		{Score: 100.5, Member: "100.5"},
		{Score: 100, Member: "100"},
		{Score: 99, Member: 99},
	}
	sizes := map[string]string{"101": "2", "100.5": "0", "100": "1.25"}

	got := levelsFrom(zs, sizes)
	assert.Equal(t, []domain.PriceLevel{
		{Price: 101, Size: 2},
		{Price: 100, Size: 1.25},
	}, got)
}

func TestSplitPatterns(t *testing.T) {
	exact, patterns := splitPatterns([]string{"ch:book:*", "ch:status", "", "ch:sim", "ch:?x"})
	assert.Equal(t, []string{"ch:status", "ch:sim"}, exact)
	assert.Equal(t, []string{"ch:book:*", "ch:?x"}, patterns)
}

func TestWindowKey(t *testing.T) {
	now := time.UnixMilli(125_000)
	assert.Equal(t, "ratelimit:api:1.2.3.4:2", windowKey("api:1.2.3.4", now, time.Minute))
	assert.Equal(t, "ratelimit:api:1.2.3.4:125", windowKey("api:1.2.3.4", now, time.Second))
}

func TestClientConfigOptions(t *testing.T) {
	opts := ClientConfig{Addr: "cache:6379", DB: 2, PoolSize: 7}.options()
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Nil(t, opts.TLSConfig)

	opts = ClientConfig{TLSEnabled: true}.options()
	assert.NotNil(t, opts.TLSConfig)
}
