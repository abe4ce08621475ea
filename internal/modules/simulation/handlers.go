package simulation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// ChartRenderer renders a run's account-value series as an image.
type ChartRenderer interface {
	RenderEquityCurve(runID int64, values []AccountValue) ([]byte, error)
}

// Handler handles backtest HTTP requests.
type Handler struct {
	service *Service
	repo    *Repository
	charts  ChartRenderer
	log     zerolog.Logger

	running atomic.Bool
}

// NewHandler creates a new backtest handler.
func NewHandler(service *Service, repo *Repository, charts ChartRenderer, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		repo:    repo,
		charts:  charts,
		log:     log.With().Str("handler", "backtest").Logger(),
	}
}

// HandleRunBacktest starts a backtest run. Runs are serialized; a second
// request while one is in flight gets 409.
func (h *Handler) HandleRunBacktest(w http.ResponseWriter, r *http.Request) {
	if !h.running.CompareAndSwap(false, true) {
		h.writeError(w, http.StatusConflict, "a backtest is already running")
		return
	}
	defer h.running.Store(false)

	runID, result, err := h.service.RunBacktest()
	if err != nil {
		h.log.Error().Err(err).Int64("run_id", runID).Msg("Backtest run failed")
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"run_id": runID,
			"status": StatusFailed,
			"error":  err.Error(),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  runID,
		"status":  StatusCompleted,
		"steps":   len(result.History),
		"summary": result.Summary,
	})
}

// HandleListRuns returns all stored runs, newest first.
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.repo.ListRuns()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, runs)
}

// HandleGetRun returns one run with its full series.
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}

	run, err := h.repo.GetRun(runID)
	if errors.Is(err, ErrRunNotFound) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	values, err := h.repo.GetAccountValues(runID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	history, err := h.repo.GetWeightHistory(runID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"run":            run,
		"account_values": values,
		"history":        history,
	})
}

// HandleGetRunChart returns the run's equity curve as a PNG.
func (h *Handler) HandleGetRunChart(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}

	if _, err := h.repo.GetRun(runID); errors.Is(err, ErrRunNotFound) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	} else if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	values, err := h.repo.GetAccountValues(runID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	img, err := h.charts.RenderEquityCurve(runID, values)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img); err != nil {
		h.log.Error().Err(err).Msg("Failed to write chart response")
	}
}

func (h *Handler) runID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid run id")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
