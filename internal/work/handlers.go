package work

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handlers provides HTTP handlers for the work processor
type Handlers struct {
	processor *Processor
	registry  *Registry
}

// NewHandlers creates new HTTP handlers for the work processor
func NewHandlers(processor *Processor, registry *Registry) *Handlers {
	return &Handlers{
		processor: processor,
		registry:  registry,
	}
}

// RegisterRoutes registers HTTP routes for work management
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/work", func(r chi.Router) {
		r.Get("/types", h.ListWorkTypes)
		r.Post("/{workType}/enqueue", h.EnqueueWorkType)
	})
}

// ListWorkTypes returns all registered work types with their last result
func (h *Handlers) ListWorkTypes(w http.ResponseWriter, r *http.Request) {
	ids := h.registry.IDs()

	response := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		entry := map[string]any{"id": id}
		if res, ok := h.processor.Completion().Last(id); ok {
			entry["last_result"] = res
		}
		response = append(response, entry)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"types":     response,
		"pending":   h.processor.Pending(),
		"in_flight": h.processor.InFlight(),
	})
}

// EnqueueWorkType queues a work type with no payload
func (h *Handlers) EnqueueWorkType(w http.ResponseWriter, r *http.Request) {
	workType := chi.URLParam(r, "workType")

	id, err := h.processor.Enqueue(workType, nil)
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, ErrUnknownWorkType) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "enqueued",
		"work_type": workType,
		"id":        id,
	})
}
