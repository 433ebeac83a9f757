package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/venuebook/internal/domain"
)

// HealthHandler answers liveness checks. The response also counts open
// feeds so an operator can tell a serving process from a useful one.
type HealthHandler struct {
	source StatusSource
}

// NewHealthHandler returns a handler; source may be nil.
func NewHealthHandler(source StatusSource) *HealthHandler {
	return &HealthHandler{source: source}
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	OpenFeeds int    `json:"open_feeds"`
	Books     int    `json:"books"`
}

// HealthCheck always returns 200 while the process serves requests.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if h.source != nil {
		for _, st := range h.source.Statuses() {
			resp.Books++
			if st.State == domain.ConnOpen {
				resp.OpenFeeds++
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
