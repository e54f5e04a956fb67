// Package handlers provides HTTP handlers for run submission and lookup.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/phaselock/internal/domain"
	"github.com/aristath/phaselock/internal/modules/hardware"
	"github.com/aristath/phaselock/internal/modules/runs"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds a submitted problem definition.
const maxBodyBytes = 1 << 20

// Handler handles run HTTP requests
type Handler struct {
	service *runs.Service
	mapper  hardware.VoltageMapper
	log     zerolog.Logger
}

// NewHandler creates a new run handler
func NewHandler(service *runs.Service, mapper hardware.VoltageMapper, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		mapper:  mapper,
		log:     log.With().Str("handler", "runs").Logger(),
	}
}

// HandleSubmit handles POST /api/runs
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	def, ok := h.decodeProblem(w, r)
	if !ok {
		return
	}

	run, err := h.service.Submit(def)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, envelope(run))
}

// HandleRunSync handles POST /api/runs/sync
func (h *Handler) HandleRunSync(w http.ResponseWriter, r *http.Request) {
	def, ok := h.decodeProblem(w, r)
	if !ok {
		return
	}

	run, err := h.service.RunSync(r.Context(), def)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(run))
}

// HandleList handles GET /api/runs
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}

	list, err := h.service.List(limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if list == nil {
		list = []runs.Run{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"runs":  list,
			"count": len(list),
		},
		"metadata": metadata(),
	})
}

// HandleGet handles GET /api/runs/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(run))
}

// HandleEvolution handles GET /api/runs/{id}/evolution
func (h *Handler) HandleEvolution(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Evolution(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.EvolutionLogEntry{}
	}
	h.writeJSON(w, http.StatusOK, envelope(entries))
}

// HandleEvolutionAt handles GET /api/runs/{id}/evolution/{iteration}
func (h *Handler) HandleEvolutionAt(w http.ResponseWriter, r *http.Request) {
	iteration, err := strconv.Atoi(chi.URLParam(r, "iteration"))
	if err != nil || iteration < 0 {
		http.Error(w, "Invalid iteration parameter", http.StatusBadRequest)
		return
	}

	entry, err := h.service.EvolutionAt(chi.URLParam(r, "id"), iteration)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(entry))
}

// HandleFeedback handles GET /api/runs/{id}/feedback
func (h *Handler) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.Feedback(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if events == nil {
		events = []domain.FeedbackEvent{}
	}
	h.writeJSON(w, http.StatusOK, envelope(events))
}

// HandleVoltages handles GET /api/runs/{id}/voltages. The modulator can be
// overridden with the v_pi, v_bias, v_max and dac_bits query parameters.
func (h *Handler) HandleVoltages(w http.ResponseWriter, r *http.Request) {
	mapper, err := h.mapperFrom(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rows, verification, err := h.service.Voltages(chi.URLParam(r, "id"), mapper)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"rows":         rows,
			"verification": verification,
		},
		"metadata": metadata(),
	})
}

func (h *Handler) mapperFrom(r *http.Request) (hardware.VoltageMapper, error) {
	m := h.mapper
	q := r.URL.Query()
	for key, dst := range map[string]*float64{"v_pi": &m.VPi, "v_bias": &m.VBias, "v_max": &m.VMax} {
		if s := q.Get(key); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return m, errors.New("Invalid " + key + " parameter")
			}
			*dst = v
		}
	}
	if s := q.Get("dac_bits"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return m, errors.New("Invalid dac_bits parameter")
		}
		m.DACBits = n
	}
	return m, m.Validate()
}

func (h *Handler) decodeProblem(w http.ResponseWriter, r *http.Request) (runs.ProblemDefinition, bool) {
	var def runs.ProblemDefinition
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&def); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return def, false
	}
	return def, true
}

// writeError maps service errors onto status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidProblemSpec), errors.Is(err, domain.ErrDegenerateInitialization):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, runs.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, runs.ErrNotReady):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "Request canceled", http.StatusServiceUnavailable)
	default:
		h.log.Error().Err(err).Msg("Run request failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data":     data,
		"metadata": metadata(),
	}
}

func metadata() map[string]interface{} {
	return map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
	}
}
