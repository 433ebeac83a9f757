package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/venuebook/internal/domain"
	"github.com/alanyoungcy/venuebook/internal/feed/feedtest"
	"github.com/alanyoungcy/venuebook/internal/store/memory"
)

type simHarness struct {
	clock *feedtest.Clock
	books *BookService
	store *memory.SimulationStore
	pub   *Publisher
	bus   *fakeBus
	svc   *SimulationService
}

func newSimHarness(t *testing.T) *simHarness {
	t.Helper()
	h := &simHarness{
		clock: feedtest.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		store: memory.NewSimulationStore(0),
		bus:   &fakeBus{},
	}
	h.pub = NewPublisher(h.bus, nil, testLogger())
	h.books = NewBookService(h.pub, nil, testLogger())
	h.svc = NewSimulationService(h.books, h.store, h.clock, h.pub, nil, DefaultSimulationConfig(), testLogger())

	n := 0
	h.svc.newID = func() string {
		n++
		return fmt.Sprintf("sim-%d", n)
	}
	return h
}

func marketBuy(qty float64) domain.SimulationRequest {
	return domain.SimulationRequest{
		Key:       btc,
		Side:      domain.SideBuy,
		OrderType: domain.OrderTypeMarket,
		Quantity:  qty,
	}
}

func TestSimulationService_Immediate(t *testing.T) {
	h := newSimHarness(t)
	h.books.Book(sampleBook(btc, h.clock.Now()))

	sub, err := h.svc.Submit(context.Background(), marketBuy(2))
	require.NoError(t, err)
	require.NotNil(t, sub.Result)
	assert.Nil(t, sub.Pending)

	res := sub.Result
	assert.Equal(t, "sim-1", res.ID)
	assert.Equal(t, 100.0, res.FillPercent)
	assert.InDelta(t, 50015.0, res.AveragePrice, 1e-9)
	assert.Equal(t, 2, res.LevelsTouched)
	assert.False(t, res.Warning)
	assert.Equal(t, h.clock.Now(), res.ProducedAt)

	hist, err := h.svc.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "sim-1", hist[0].ID)

	flush(t, h.pub)
	evt := requireChannel(t, h.bus.all(), domain.ChannelSimulation, domain.EventSimulation)
	require.NotNil(t, evt.Simulation)
	assert.Equal(t, "sim-1", evt.Simulation.ID)
}

func TestSimulationService_WarningThresholds(t *testing.T) {
	h := newSimHarness(t)
	h.books.Book(domain.OrderBook{
		Key:  btc,
		Bids: []domain.PriceLevel{{Price: 99, Size: 1}},
		Asks: []domain.PriceLevel{{Price: 100, Size: 1}, {Price: 101, Size: 1}},
	})

	sub, err := h.svc.Submit(context.Background(), marketBuy(2))
	require.NoError(t, err)
	assert.InDelta(t, 50.0, sub.Result.SlippageBps, 1e-9)
	assert.True(t, sub.Result.Warning)
}

func TestSimulationService_WarningOnLevelsTouched(t *testing.T) {
	h := newSimHarness(t)
	var asks []domain.PriceLevel
	for i := range 11 {
		asks = append(asks, domain.PriceLevel{Price: 50000 + float64(i)*0.01, Size: 1})
	}
	h.books.Book(domain.OrderBook{Key: btc, Asks: asks})

	sub, err := h.svc.Submit(context.Background(), marketBuy(11))
	require.NoError(t, err)
	assert.Less(t, sub.Result.SlippageBps, 12.0)
	assert.Equal(t, 11, sub.Result.LevelsTouched)
	assert.True(t, sub.Result.Warning)
}

func TestSimulationService_ImmediateWithoutBook(t *testing.T) {
	h := newSimHarness(t)

	_, err := h.svc.Submit(context.Background(), marketBuy(1))
	assert.ErrorIs(t, err, domain.ErrNoBook)
}

func TestSimulationService_RejectsInvalid(t *testing.T) {
	h := newSimHarness(t)

	req := marketBuy(0)
	_, err := h.svc.Submit(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidSimulation)

	req = marketBuy(1)
	req.Delay = domain.MaxSimulationDelay + time.Millisecond
	_, err = h.svc.Submit(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidSimulation)
	assert.Empty(t, h.svc.Pending())

	req = marketBuy(1)
	req.Key.Venue = "Kraken"
	_, err = h.svc.Submit(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrUnknownVenue)
}

func TestSimulationService_Delayed(t *testing.T) {
	h := newSimHarness(t)
	req := marketBuy(1)
	req.Delay = 2 * time.Second

	sub, err := h.svc.Submit(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, sub.Pending)
	assert.Equal(t, h.clock.Now().Add(2*time.Second), sub.Pending.DueAt)
	assert.Len(t, h.svc.Pending(), 1)

	// The book arrives after submission; the run uses the book at execution time.
	h.books.Book(sampleBook(btc, h.clock.Now()))
	h.clock.Advance(2 * time.Second)
	h.svc.wg.Wait()

	assert.Empty(t, h.svc.Pending())
	hist, err := h.svc.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, sub.Pending.ID, hist[0].ID)
	assert.Equal(t, 50010.0, hist[0].AveragePrice)
	assert.Equal(t, sub.Pending.DueAt, hist[0].ProducedAt)
}

func TestSimulationService_DelayedWithoutBookFails(t *testing.T) {
	h := newSimHarness(t)
	req := marketBuy(1)
	req.Delay = time.Second

	_, err := h.svc.Submit(context.Background(), req)
	require.NoError(t, err)

	h.clock.Advance(time.Second)
	h.svc.wg.Wait()
	flush(t, h.pub)

	hist, err := h.svc.History(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, hist)
	evt := requireChannel(t, h.bus.all(), domain.ChannelSimulation, domain.EventSimFailed)
	assert.NotEmpty(t, evt.Error)
}

func TestSimulationService_CancelPending(t *testing.T) {
	h := newSimHarness(t)
	h.books.Book(sampleBook(btc, h.clock.Now()))
	req := marketBuy(1)
	req.Delay = time.Second

	sub, err := h.svc.Submit(context.Background(), req)
	require.NoError(t, err)

	require.NoError(t, h.svc.Cancel(sub.Pending.ID))
	assert.ErrorIs(t, h.svc.Cancel(sub.Pending.ID), domain.ErrNotFound)

	h.clock.Advance(time.Second)
	h.svc.wg.Wait()

	hist, err := h.svc.History(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, hist)
}
