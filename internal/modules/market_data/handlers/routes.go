package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers price history routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/prices", h.HandleGetPrices)

	r.Route("/tickers", func(r chi.Router) {
		r.Get("/", h.HandleListTickers)
		r.Get("/{symbol}/gaps", h.HandleGetGaps)
	})
}
