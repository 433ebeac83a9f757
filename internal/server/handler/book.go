package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/venuebook/internal/domain"
	"github.com/alanyoungcy/venuebook/internal/service"
)

// BookReader serves book snapshots and feed state.
type BookReader interface {
	StatusSource
	View(key domain.BookKey) (service.BookView, error)
}

// FeedController accepts connect and disconnect intents.
type FeedController interface {
	Connect(key domain.BookKey)
	Disconnect(key domain.BookKey)
}

// BookHandler serves order book endpoints.
type BookHandler struct {
	books  BookReader
	feed   FeedController
	logger *slog.Logger
}

func NewBookHandler(books BookReader, feed FeedController, logger *slog.Logger) *BookHandler {
	return &BookHandler{books: books, feed: feed, logger: logger}
}

// ListBooks returns every known book status.
// GET /api/books
func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"books": h.books.Statuses()})
}

// GetBook returns the latest book with cumulative depth and mid.
// GET /api/books/{venue}/{instrument}
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	key, err := keyFrom(pathParam(r, "venue"), pathParam(r, "instrument"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.books.View(key)
	if err != nil {
		if errors.Is(err, domain.ErrNoBook) {
			writeError(w, http.StatusNotFound, "no book for "+key.String())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get book failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get book")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type bookIntent struct {
	Venue      string `json:"venue"`
	Instrument string `json:"instrument"`
}

// Connect asks the feed to (re)connect a book.
// POST /api/books/connect
func (h *BookHandler) Connect(w http.ResponseWriter, r *http.Request) {
	h.intent(w, r, "connect", h.feed.Connect)
}

// Disconnect asks the feed to drop a book.
// POST /api/books/disconnect
func (h *BookHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	h.intent(w, r, "disconnect", h.feed.Disconnect)
}

func (h *BookHandler) intent(w http.ResponseWriter, r *http.Request, action string, apply func(domain.BookKey)) {
	var body bookIntent
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	key, err := keyFrom(body.Venue, body.Instrument)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	apply(key)
	h.logger.InfoContext(r.Context(), "handler: book intent",
		slog.String("action", action),
		slog.String("key", key.String()),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":     action,
		"venue":      string(key.Venue),
		"instrument": key.Instrument,
	})
}

// keyFrom resolves a venue name and instrument into a BookKey.
func keyFrom(venue, instrument string) (domain.BookKey, error) {
	instrument = strings.TrimSpace(instrument)
	if instrument == "" {
		return domain.BookKey{}, errors.New("instrument is required")
	}
	v, err := domain.ParseVenue(venue)
	if err != nil {
		return domain.BookKey{}, err
	}
	return domain.BookKey{Venue: v, Instrument: instrument}, nil
}
