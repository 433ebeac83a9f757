package deribit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/venuebook/internal/book"
	"github.com/alanyoungcy/venuebook/internal/book/booktest"
	"github.com/alanyoungcy/venuebook/internal/domain"
)

var fixed = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestAdapter() *Adapter {
	return New(WithClock(func() time.Time { return fixed }))
}

const snapshot = `{"jsonrpc":"2.0","method":"subscription","params":{
  "channel":"book.BTC-PERPETUAL.none.20.100ms",
  "data":{"instrument_name":"BTC-PERPETUAL","change_id":500,"timestamp":1700000000456,
    "bids":[[50000,1.5],[49990,2.0],[0,3]],
    "asks":[["50010","1.0"],[50020,1.5]]}}}`

func TestParse_Snapshot(t *testing.T) {
	st := book.NewState()
	ob, ok := newTestAdapter().Parse(st, []byte(snapshot))
	require.True(t, ok)

	assert.Equal(t, domain.BookKey{Venue: domain.VenueDeribit, Instrument: "BTC-PERPETUAL"}, ob.Key)
	assert.Equal(t, []domain.PriceLevel{{Price: 50000, Size: 1.5}, {Price: 49990, Size: 2}}, ob.Bids)
	assert.Equal(t, []domain.PriceLevel{{Price: 50010, Size: 1}, {Price: 50020, Size: 1.5}}, ob.Asks)
	assert.Equal(t, time.UnixMilli(1700000000456), ob.ObservedAt)
	assert.Equal(t, int64(500), st.Cursor)
}

func TestParse_Changes(t *testing.T) {
	a := newTestAdapter()
	st := book.NewState()
	_, ok := a.Parse(st, []byte(snapshot))
	require.True(t, ok)

	change := `{"jsonrpc":"2.0","method":"subscription","params":{
	  "channel":"book.BTC-PERPETUAL.none.20.100ms",
	  "data":{"change_id":501,"prev_change_id":500,
	    "bids":[["delete",50000.0,5.0],["new","49995","0.5"],["change",-1,3]],
	    "asks":[["change",50010,0],[50030,"2"]]}}}`

	ob, ok := a.Parse(st, []byte(change))
	require.True(t, ok)
	assert.Equal(t, []domain.PriceLevel{{Price: 49995, Size: 0.5}, {Price: 49990, Size: 2}}, ob.Bids)
	assert.Equal(t, []domain.PriceLevel{{Price: 50020, Size: 1.5}, {Price: 50030, Size: 2}}, ob.Asks)
	assert.Equal(t, fixed, ob.ObservedAt)
	assert.Equal(t, int64(501), st.Cursor)
}

func TestParse_DeleteIgnoresSize(t *testing.T) {
	st := book.NewState()
	st.Bids.Apply(100, 5)
	st.Bids.Apply(99, 1)
	st.Cursor = 10

	raw := `{"method":"subscription","params":{"channel":"book.ETH-PERPETUAL.none.20.100ms",
	  "data":{"change_id":11,"prev_change_id":10,"bids":[["delete",100.0,5.0]],"asks":[]}}}`
	ob, ok := newTestAdapter().Parse(st, []byte(raw))
	require.True(t, ok)
	assert.Equal(t, []domain.PriceLevel{{Price: 99, Size: 1}}, ob.Bids)
}

func TestParse_StaleChangeDiscarded(t *testing.T) {
	st := book.NewState()
	st.Bids.Apply(100, 5)
	st.Cursor = 20

	raw := `{"method":"subscription","params":{"channel":"book.ETH-PERPETUAL.none.20.100ms",
	  "data":{"change_id":20,"prev_change_id":19,"bids":[["delete",100,0]],"asks":[]}}}`
	_, ok := newTestAdapter().Parse(st, []byte(raw))
	assert.False(t, ok)
	assert.Equal(t, []domain.PriceLevel{{Price: 100, Size: 5}}, st.Bids.Levels())
}

func TestParse_ZeroPrevChangeIDIsSnapshot(t *testing.T) {
	st := book.NewState()
	st.Asks.Apply(1, 1)

	raw := `{"method":"subscription","params":{"channel":"book.BTC-PERPETUAL.none.20.100ms",
	  "data":{"change_id":3,"prev_change_id":0,"bids":[[10,1]],"asks":[]}}}`
	ob, ok := newTestAdapter().Parse(st, []byte(raw))
	require.True(t, ok)
	assert.Empty(t, ob.Asks)
	assert.Len(t, ob.Bids, 1)
}

func TestParse_InstrumentFallback(t *testing.T) {
	raw := `{"method":"subscription","params":{"channel":"other",
	  "data":{"instrument_name":"ETH-PERPETUAL","bids":[[10,1]],"asks":[]}}}`
	ob, ok := newTestAdapter().Parse(book.NewState(), []byte(raw))
	require.True(t, ok)
	assert.Equal(t, "ETH-PERPETUAL", ob.Key.Instrument)
}

func TestParse_NoUpdate(t *testing.T) {
	tests := map[string]string{
		"rpc error":       `{"jsonrpc":"2.0","id":1,"error":{"code":10001,"message":"bad"}}`,
		"rpc response":    `{"jsonrpc":"2.0","id":1,"result":["book.BTC-PERPETUAL.none.20.100ms"]}`,
		"heartbeat":       `{"jsonrpc":"2.0","method":"heartbeat","params":{"type":"test_request"}}`,
		"no data":         `{"method":"subscription","params":{"channel":"book.BTC-PERPETUAL.none.20.100ms"}}`,
		"no channel":      `{"method":"subscription","params":{"data":{"instrument_name":"X","bids":[[1,1]]}}}`,
		"no instrument":   `{"method":"subscription","params":{"channel":"trades","data":{"bids":[[1,1]]}}}`,
		"malformed":       `{"method":`,
		"empty snapshot":  `{"method":"subscription","params":{"channel":"book.BTC-PERPETUAL.none.20.100ms","data":{"bids":[[-1,1]],"asks":[]}}}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, ok := newTestAdapter().Parse(book.NewState(), []byte(raw))
			assert.False(t, ok)
		})
	}
}

func TestSubscribePayload(t *testing.T) {
	tests := map[string]string{
		"btcperpetual":       "BTC-PERPETUAL",
		"BTC-PERPETUAL":      "BTC-PERPETUAL",
		"SOL_USDC-PERPETUAL": "SOL_USDC-PERPETUAL",
		"BTC-27DEC24":        "BTC-27DEC24",
	}
	for in, want := range tests {
		b, err := New().SubscribePayload(in)
		require.NoError(t, err)
		assert.JSONEq(t,
			`{"jsonrpc":"2.0","id":1,"method":"public/subscribe","params":{"channels":["book.`+want+`.none.20.100ms"]}}`,
			string(b), in)
	}
}

func TestParse_RejectsNonFiniteAndNegative(t *testing.T) {
	a := newTestAdapter()
	st := book.NewState()
	_, ok := a.Parse(st, []byte(snapshot))
	require.True(t, ok)

	change := `{"jsonrpc":"2.0","method":"subscription","params":{
	  "channel":"book.BTC-PERPETUAL.none.20.100ms",
	  "data":{"change_id":501,"prev_change_id":500,"timestamp":1700000000500,
	    "bids":[["new","NaN",5],["change",50000,"Inf"],["new",49980,-3]],
	    "asks":[["delete","NaN",0],["new","50015","NaN"]]}}}`

	ob, ok := a.Parse(st, []byte(change))
	require.True(t, ok)
	assert.Equal(t, []domain.PriceLevel{{Price: 50000, Size: 1.5}, {Price: 49990, Size: 2}}, ob.Bids)
	assert.Equal(t, []domain.PriceLevel{{Price: 50010, Size: 1}, {Price: 50020, Size: 1.5}}, ob.Asks)
}

var actions = []string{"new", "change", "delete"}

// deribitLevels encodes snapshots as [price, size] pairs and changes as
// [action, price, size] tuples, with the occasional bare pair.
func deribitLevels(gen *booktest.Gen, entries []booktest.Entry, changes bool) [][]any {
	out := make([][]any, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		if !changes || gen.Intn(5) == 0 {
			out = append(out, []any{e.RawPrice, e.RawSize})
			continue
		}
		action := actions[gen.Intn(len(actions))]
		e.Delete = action == "delete"
		out = append(out, []any{action, e.RawPrice, e.RawSize})
	}
	return out
}

func TestParse_RandomSequencesStayCanonical(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		gen := booktest.NewGen(seed)
		a := newTestAdapter()
		st := book.NewState()
		model := booktest.NewModel()

		for step := range 60 {
			snap := step == 0 || gen.Intn(10) == 0
			if snap {
				model.Reset()
			}
			bids, asks := gen.Batch(12), gen.Batch(12)
			rawBids := deribitLevels(gen, bids, !snap)
			rawAsks := deribitLevels(gen, asks, !snap)
			booktest.Apply(model.Bids, bids)
			booktest.Apply(model.Asks, asks)

			data := map[string]any{
				"instrument_name": "BTC-PERPETUAL",
				"change_id":       1000 + step,
				"timestamp":       1700000000000 + step,
				"bids":            rawBids,
				"asks":            rawAsks,
			}
			if !snap {
				data["prev_change_id"] = 999 + step
			}
			raw, err := json.Marshal(map[string]any{
				"jsonrpc": "2.0",
				"method":  "subscription",
				"params":  map[string]any{"channel": "book.BTC-PERPETUAL.none.20.100ms", "data": data},
			})
			require.NoError(t, err)

			ob, ok := a.Parse(st, raw)
			booktest.AssertMatches(t, model, ob, ok, step)
		}
	}
}
