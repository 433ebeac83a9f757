package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/venuebook/internal/domain"
)

// StatusSource reports feed state.
type StatusSource interface {
	Statuses() []domain.BookStatus
	Signals() []domain.Signal
}

// StatusHandler serves the process overview.
type StatusHandler struct {
	mode      string
	venues    []domain.Venue
	startedAt time.Time
	source    StatusSource
}

func NewStatusHandler(mode string, venues []domain.Venue, startedAt time.Time, source StatusSource) *StatusHandler {
	return &StatusHandler{mode: mode, venues: venues, startedAt: startedAt, source: source}
}

type statusResponse struct {
	Mode          string              `json:"mode"`
	Venues        []domain.Venue      `json:"venues"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	Books         []domain.BookStatus `json:"books"`
	Signals       []domain.Signal     `json:"signals"`
}

// GetStatus responds with mode, uptime, per-book state and active signals.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Mode:          h.mode,
		Venues:        h.venues,
		UptimeSeconds: max(int64(time.Since(h.startedAt).Seconds()), 0),
		Books:         h.source.Statuses(),
		Signals:       h.source.Signals(),
	})
}
