// Package handlers provides HTTP handlers for market data refresh.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/folio/internal/modules/refresh"
	"github.com/rs/zerolog"
)

// Handler handles refresh HTTP requests
type Handler struct {
	coordinator *refresh.Coordinator
	now         func() time.Time
	log         zerolog.Logger
}

// NewHandler creates a new refresh handler
func NewHandler(
	coordinator *refresh.Coordinator,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		coordinator: coordinator,
		now:         time.Now,
		log:         log.With().Str("handler", "refresh").Logger(),
	}
}

// HandleGetStatus handles GET /api/refresh/status
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.coordinator.Status(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read refresh status")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	h.writeData(w, http.StatusOK, status)
}

// HandleTriggerRefresh handles POST /api/refresh
//
// Query parameters:
//   - force=true skips the staleness check (the lock is still honoured)
//   - catch_up=false disables the after-close catch-up rule
func (h *Handler) HandleTriggerRefresh(w http.ResponseWriter, r *http.Request) {
	opts := refresh.ScheduleOptions{AllowCatchUp: true}
	if v := r.URL.Query().Get("force"); v != "" {
		opts.Force, _ = strconv.ParseBool(v)
	}
	if v := r.URL.Query().Get("catch_up"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			opts.AllowCatchUp = b
		}
	}

	result, err := h.coordinator.ScheduleIfNeeded(r.Context(), "manual", opts)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to schedule refresh")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}

	status := http.StatusOK
	if result.Scheduled {
		status = http.StatusAccepted
	}
	h.writeData(w, status, result)
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}) {
	h.writeJSON(w, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": h.now().Format(time.RFC3339),
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
