package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all ledger routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolios", func(r chi.Router) {
		r.Get("/", h.HandleListPortfolios)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/valuation", h.HandleGetValuation)
			r.Get("/transactions", h.HandleGetTransactions)
			r.Get("/realized", h.HandleGetRealized)

			r.Post("/trades", h.HandleApplyTrade)
			r.Post("/deposits", h.HandleRecordDeposit)
			r.Post("/import", h.HandleImport)
		})
	})
}
