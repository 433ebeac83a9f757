package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/venuebook/internal/domain"
	"github.com/alanyoungcy/venuebook/internal/feed/feedtest"
	"github.com/alanyoungcy/venuebook/internal/server/handler"
	"github.com/alanyoungcy/venuebook/internal/service"
	"github.com/alanyoungcy/venuebook/internal/store/memory"
)

var btc = domain.BookKey{Venue: domain.VenueOKX, Instrument: "BTC-USDT"}

type recordingFeed struct {
	mu           sync.Mutex
	connected    []domain.BookKey
	disconnected []domain.BookKey
}

func (f *recordingFeed) Connect(key domain.BookKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = append(f.connected, key)
}

func (f *recordingFeed) Disconnect(key domain.BookKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, key)
}

type harness struct {
	clock *feedtest.Clock
	books *service.BookService
	sims  *service.SimulationService
	feed  *recordingFeed
	h     http.Handler
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := feedtest.NewClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	pub := service.NewPublisher(nil, nil, logger)
	books := service.NewBookService(pub, nil, logger)
	sims := service.NewSimulationService(books, memory.NewSimulationStore(0), clock, pub, nil, service.DefaultSimulationConfig(), logger)
	t.Cleanup(sims.Close)

	feed := &recordingFeed{}
	handlers := Handlers{
		Health:      handler.NewHealthHandler(books),
		Status:      handler.NewStatusHandler("server", []domain.Venue{domain.VenueOKX}, clock.Now(), books),
		Books:       handler.NewBookHandler(books, feed, logger),
		Signals:     handler.NewSignalHandler(books),
		Simulations: handler.NewSimulationHandler(sims, logger),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("# metrics\n"))
		}),
	}
	return &harness{
		clock: clock,
		books: books,
		sims:  sims,
		feed:  feed,
		h:     Routes(cfg, handlers, nil, nil, logger),
	}
}

func (h *harness) do(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	return rec
}

func (h *harness) seedBook() {
	h.books.Book(domain.OrderBook{
		Key:        btc,
		Bids:       []domain.PriceLevel{{Price: 99, Size: 2}, {Price: 98, Size: 3}},
		Asks:       []domain.PriceLevel{{Price: 101, Size: 1}, {Price: 102, Size: 4}},
		ObservedAt: h.clock.Now(),
	})
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(v))
}

func TestRoutes_HealthAndMetrics(t *testing.T) {
	h := newHarness(t, Config{})

	rec := h.do(http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"open_feeds":0`)

	rec = h.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics\n", rec.Body.String())
}

func TestRoutes_GetBook(t *testing.T) {
	h := newHarness(t, Config{})

	rec := h.do(http.MethodGet, "/api/books/okx/BTC-USDT", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodGet, "/api/books/kraken/BTC-USDT", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.seedBook()
	rec = h.do(http.MethodGet, "/api/books/okx/BTC-USDT", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view service.BookView
	decode(t, rec, &view)
	assert.Equal(t, domain.VenueOKX, view.Venue)
	assert.Equal(t, 100.0, view.Mid)
	assert.Equal(t, 2.0, view.Spread)
	require.Len(t, view.AskDepth, 2)
	assert.Equal(t, 5.0, view.AskDepth[1].Cum)
}

func TestRoutes_ConnectAndDisconnect(t *testing.T) {
	h := newHarness(t, Config{})

	rec := h.do(http.MethodPost, "/api/books/connect", `{"venue":"bybit","instrument":"ETHUSDT"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	rec = h.do(http.MethodPost, "/api/books/disconnect", `{"venue":"Bybit","instrument":"ETHUSDT"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	eth := domain.BookKey{Venue: domain.VenueBybit, Instrument: "ETHUSDT"}
	assert.Equal(t, []domain.BookKey{eth}, h.feed.connected)
	assert.Equal(t, []domain.BookKey{eth}, h.feed.disconnected)

	rec = h.do(http.MethodPost, "/api/books/connect", `{"venue":"bybit"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(http.MethodPost, "/api/books/connect", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoutes_StatusAndSignals(t *testing.T) {
	h := newHarness(t, Config{})
	h.books.Status(btc, domain.ConnOpen)
	h.books.RaiseSignal(domain.Signal{
		Key:      btc,
		Kind:     domain.SignalDegraded,
		Severity: domain.SeverityWarning,
		Message:  "thin",
		RaisedAt: h.clock.Now(),
	})

	rec := h.do(http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Mode    string              `json:"mode"`
		Books   []domain.BookStatus `json:"books"`
		Signals []domain.Signal     `json:"signals"`
	}
	decode(t, rec, &status)
	assert.Equal(t, "server", status.Mode)
	require.Len(t, status.Books, 1)
	assert.Equal(t, domain.ConnOpen, status.Books[0].State)
	require.Len(t, status.Signals, 1)

	rec = h.do(http.MethodGet, "/api/signals", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"thin"`)
}

func TestRoutes_ImmediateSimulation(t *testing.T) {
	h := newHarness(t, Config{})

	body := `{"venue":"okx","instrument":"BTC-USDT","side":"buy","order_type":"market","quantity":2}`
	rec := h.do(http.MethodPost, "/api/simulations", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	h.seedBook()
	rec = h.do(http.MethodPost, "/api/simulations", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var sub service.Submission
	decode(t, rec, &sub)
	require.NotNil(t, sub.Result)
	assert.Equal(t, 100.0, sub.Result.FillPercent)
	assert.InDelta(t, 101.5, sub.Result.AveragePrice, 1e-9)

	rec = h.do(http.MethodGet, "/api/simulations/"+sub.Result.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(http.MethodGet, "/api/simulations/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodGet, "/api/simulations?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Results []domain.SimulationResult  `json:"results"`
		Pending []domain.PendingSimulation `json:"pending"`
	}
	decode(t, rec, &list)
	assert.Len(t, list.Results, 1)
	assert.Empty(t, list.Pending)
}

func TestRoutes_InvalidSimulation(t *testing.T) {
	h := newHarness(t, Config{})

	for _, body := range []string{
		`{"venue":"okx","instrument":"BTC-USDT","side":"hold","order_type":"market","quantity":1}`,
		`{"venue":"okx","instrument":"BTC-USDT","side":"buy","order_type":"limit","quantity":1}`,
		`{"venue":"okx","instrument":"BTC-USDT","side":"buy","order_type":"market","quantity":0}`,
		`{"venue":"ftx","instrument":"BTC-USDT","side":"buy","order_type":"market","quantity":1}`,
		`{"venue":"okx","instrument":"BTC-USDT","side":"buy","order_type":"market","quantity":1,"delay_ms":-1}`,
		`{"venue":"okx","instrument":"BTC-USDT","side":"buy","order_type":"market","quantity":1,"delay_ms":86400001}`,
		`{"venue":"okx","instrument":"BTC-USDT","side":"buy","order_type":"market","quantity":1,"delay_ms":9223372036854775807}`,
		`not json`,
	} {
		rec := h.do(http.MethodPost, "/api/simulations", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestRoutes_DelayedSimulationCanBeCancelled(t *testing.T) {
	h := newHarness(t, Config{})
	h.seedBook()

	body := `{"venue":"okx","instrument":"BTC-USDT","side":"sell","order_type":"market","quantity":1,"delay_ms":5000}`
	rec := h.do(http.MethodPost, "/api/simulations", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var sub service.Submission
	decode(t, rec, &sub)
	require.NotNil(t, sub.Pending)
	assert.Equal(t, h.clock.Now().Add(5*time.Second), sub.Pending.DueAt)

	rec = h.do(http.MethodDelete, "/api/simulations/"+sub.Pending.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(http.MethodDelete, "/api/simulations/"+sub.Pending.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	h.clock.Advance(10 * time.Second)
	assert.Empty(t, h.sims.Pending())
}

func TestRoutes_AuthRequiredWhenKeySet(t *testing.T) {
	h := newHarness(t, Config{APIKey: "k"})

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/books", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/books", nil)
	req.Header.Set("X-API-Key", "k")
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"books"`)
}
