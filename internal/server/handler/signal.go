package handler

import "net/http"

// SignalHandler serves the active signal list.
type SignalHandler struct {
	source StatusSource
}

func NewSignalHandler(source StatusSource) *SignalHandler {
	return &SignalHandler{source: source}
}

// ListSignals returns active signals, oldest first.
// GET /api/signals
func (h *SignalHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"signals": h.source.Signals()})
}
