package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers refresh routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/refresh", func(r chi.Router) {
		r.Get("/status", h.HandleGetStatus)
		r.Post("/", h.HandleTriggerRefresh)
	})
}
