package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alanyoungcy/venuebook/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestFeedCounters(t *testing.T) {
	m := New("venuebook")

	m.MessageParsed(domain.VenueOKX)
	m.MessageParsed(domain.VenueOKX)
	m.MessageDropped(domain.VenueBybit)
	m.Reconnect(domain.VenueDeribit, "stale")

	body := scrape(t, m)
	assert.Contains(t, body, `venuebook_feed_messages_parsed_total{venue="OKX"} 2`)
	assert.Contains(t, body, `venuebook_feed_messages_dropped_total{venue="Bybit"} 1`)
	assert.Contains(t, body, `venuebook_feed_reconnects_total{reason="stale",venue="Deribit"} 1`)
}

func TestConnStateIsOneHot(t *testing.T) {
	m := New("venuebook")
	key := domain.BookKey{Venue: domain.VenueOKX, Instrument: "BTCUSDT"}

	m.ConnState(key, domain.ConnConnecting)
	m.ConnState(key, domain.ConnOpen)

	body := scrape(t, m)
	assert.Contains(t, body, `venuebook_feed_connection_state{instrument="BTCUSDT",state="open",venue="OKX"} 1`)
	assert.Contains(t, body, `venuebook_feed_connection_state{instrument="BTCUSDT",state="connecting",venue="OKX"} 0`)
}

func TestSignalsGauge(t *testing.T) {
	m := New("venuebook")

	m.SignalRaised(domain.SignalStale)
	m.SignalRaised(domain.SignalStale)
	m.SignalCleared(domain.SignalStale)

	assert.Contains(t, scrape(t, m), `venuebook_signals_active{kind="stale"} 1`)
}

func TestBookDepthAndSimulation(t *testing.T) {
	m := New("venuebook")
	m.BookDepth(domain.OrderBook{
		Key:  domain.BookKey{Venue: domain.VenueBybit, Instrument: "ETHUSDT"},
		Bids: []domain.PriceLevel{{Price: 1, Size: 1}},
	})
	m.Simulation(domain.SimulationResult{
		Venue:   domain.VenueBybit,
		Request: domain.SimulationRequest{Side: domain.SideBuy, OrderType: domain.OrderTypeMarket},
		Fill:    domain.Fill{SlippageBps: 3},
	})

	body := scrape(t, m)
	assert.Contains(t, body, `venuebook_book_depth_levels{instrument="ETHUSDT",side="bid",venue="Bybit"} 1`)
	assert.Contains(t, body, `venuebook_book_depth_levels{instrument="ETHUSDT",side="ask",venue="Bybit"} 0`)
	assert.Contains(t, body, `venuebook_simulations_total{order_type="market",side="buy",venue="Bybit"} 1`)
	assert.Contains(t, body, `venuebook_simulation_slippage_bps_count 1`)
}
