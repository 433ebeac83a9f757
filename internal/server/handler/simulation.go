package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/venuebook/internal/domain"
	"github.com/alanyoungcy/venuebook/internal/service"
)

// SimulationService defines what the simulation handler needs.
type SimulationService interface {
	Submit(ctx context.Context, req domain.SimulationRequest) (service.Submission, error)
	History(ctx context.Context, limit int) ([]domain.SimulationResult, error)
	Get(ctx context.Context, id string) (domain.SimulationResult, error)
	Pending() []domain.PendingSimulation
	Cancel(id string) error
}

// SimulationHandler serves simulation endpoints.
type SimulationHandler struct {
	sims   SimulationService
	logger *slog.Logger
}

func NewSimulationHandler(sims SimulationService, logger *slog.Logger) *SimulationHandler {
	return &SimulationHandler{sims: sims, logger: logger}
}

type simulationBody struct {
	Venue      string           `json:"venue"`
	Instrument string           `json:"instrument"`
	Side       domain.Side      `json:"side"`
	OrderType  domain.OrderType `json:"order_type"`
	LimitPrice float64          `json:"limit_price"`
	Quantity   float64          `json:"quantity"`
	DelayMs    int64            `json:"delay_ms"`
}

// Submit runs a simulation now (200) or schedules it (202).
// POST /api/simulations
func (h *SimulationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var body simulationBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	key, err := keyFrom(body.Venue, body.Instrument)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.DelayMs < 0 || body.DelayMs > domain.MaxSimulationDelay.Milliseconds() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("delay_ms must be between 0 and %d", domain.MaxSimulationDelay.Milliseconds()))
		return
	}

	sub, err := h.sims.Submit(r.Context(), domain.SimulationRequest{
		Key:        key,
		Side:       body.Side,
		OrderType:  body.OrderType,
		LimitPrice: body.LimitPrice,
		Quantity:   body.Quantity,
		Delay:      time.Duration(body.DelayMs) * time.Millisecond,
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidSimulation), errors.Is(err, domain.ErrUnknownVenue):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, domain.ErrNoBook):
		writeError(w, http.StatusConflict, "waiting for live data: no book for "+key.String())
		return
	default:
		h.logger.ErrorContext(r.Context(), "handler: submit simulation failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to run simulation")
		return
	}

	if sub.Pending != nil {
		writeJSON(w, http.StatusAccepted, sub)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

type listSimulationsResponse struct {
	Results []domain.SimulationResult  `json:"results"`
	Pending []domain.PendingSimulation `json:"pending"`
}

// ListSimulations returns recent results, newest first, and pending runs.
// GET /api/simulations?limit=50
func (h *SimulationHandler) ListSimulations(w http.ResponseWriter, r *http.Request) {
	results, err := h.sims.History(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list simulations failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list simulations")
		return
	}
	if results == nil {
		results = []domain.SimulationResult{}
	}
	writeJSON(w, http.StatusOK, listSimulationsResponse{Results: results, Pending: h.sims.Pending()})
}

// GetSimulation returns one recorded result.
// GET /api/simulations/{id}
func (h *SimulationHandler) GetSimulation(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	res, err := h.sims.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "simulation not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get simulation failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get simulation")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CancelSimulation drops a pending simulation.
// DELETE /api/simulations/{id}
func (h *SimulationHandler) CancelSimulation(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if err := h.sims.Cancel(id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no pending simulation "+id)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to cancel simulation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "id": id})
}
