// Package handlers provides HTTP handlers for ledger operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/ledger"
	"github.com/aristath/folio/internal/modules/pnl"
	"github.com/aristath/folio/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles ledger HTTP requests
type Handler struct {
	service *ledger.Service
	now     func() time.Time
	log     zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(
	service *ledger.Service,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		service: service,
		now:     time.Now,
		log:     log.With().Str("handler", "ledger").Logger(),
	}
}

// HandleListPortfolios handles GET /api/portfolios
func (h *Handler) HandleListPortfolios(w http.ResponseWriter, r *http.Request) {
	portfolios, err := h.service.ListPortfolios(r.Context(), r.URL.Query().Get("user"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, map[string]interface{}{
		"portfolios": portfolios,
		"count":      len(portfolios),
	})
}

// HandleGetValuation handles GET /api/portfolios/{id}/valuation
func (h *Handler) HandleGetValuation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}
	v, err := h.service.Valuate(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, v)
}

// HandleGetTransactions handles GET /api/portfolios/{id}/transactions
func (h *Handler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}
	txns, err := h.service.ListTransactions(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, map[string]interface{}{
		"transactions": txns,
		"count":        len(txns),
	})
}

// HandleGetRealized handles GET /api/portfolios/{id}/realized?fy=FY2023-24
//
// Without fy, or with fy=max, the summary spans every financial year since
// the first transaction.
func (h *Handler) HandleGetRealized(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	txns, err := h.service.ListTransactions(ctx, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	deposits, err := h.service.ListDeposits(ctx, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if len(txns) == 0 {
		http.Error(w, "No transactions found", http.StatusNotFound)
		return
	}

	// Future-dated trades extend the range past today
	until := h.now()
	if latest := txns[len(txns)-1].Date; latest.After(until) {
		until = latest
	}
	years := pnl.FinancialYearsSince(txns[0].Date, until)
	if len(years) == 0 {
		http.Error(w, "No dated transactions found", http.StatusNotFound)
		return
	}
	amounts := make([]pnl.DatedAmount, len(deposits))
	for i, d := range deposits {
		amounts[i] = pnl.DatedAmount{Date: d.Date, Amount: d.Amount}
	}
	annotated := pnl.Annotate(txns)

	var summary pnl.Summary
	selected := strings.TrimSpace(r.URL.Query().Get("fy"))
	if selected == "" || strings.EqualFold(selected, "max") {
		first, last := years[0], years[len(years)-1]
		summary = pnl.TaxSummary(annotated, amounts, first.Start(), last.End(), "max")
	} else {
		fy, err := pnl.ParseFiscalYear(selected)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		summary = pnl.FiscalYearSummary(annotated, amounts, fy)
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"financial_years": years,
		"summary":         summary,
	})
}

type tradeRequest struct {
	Date       string  `json:"date"`
	Symbol     string  `json:"symbol"`
	Exchange   string  `json:"exchange"`
	TradeType  string  `json:"trade_type"`
	Price      float64 `json:"price"`
	Quantity   float64 `json:"quantity"`
	Commission float64 `json:"commission"`
}

// HandleApplyTrade handles POST /api/portfolios/{id}/trades
func (h *Handler) HandleApplyTrade(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	date, err := utils.ParseDate(req.Date)
	if err != nil {
		h.writeError(w, errors.Join(domain.ErrInvalidDateParse, err))
		return
	}
	typ, err := domain.ParseTradeType(req.TradeType)
	if err != nil {
		h.writeError(w, err)
		return
	}

	txn, err := h.service.Apply(r.Context(), ledger.TradeEvent{
		Date:        date,
		Symbol:      req.Symbol,
		Exchange:    req.Exchange,
		Type:        typ,
		PortfolioID: id,
		Price:       req.Price,
		Quantity:    req.Quantity,
		Commission:  req.Commission,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, http.StatusCreated, txn)
}

type depositRequest struct {
	Date   string  `json:"date"`
	Amount float64 `json:"amount"`
}

// HandleRecordDeposit handles POST /api/portfolios/{id}/deposits
func (h *Handler) HandleRecordDeposit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	date, err := utils.ParseDate(req.Date)
	if err != nil {
		h.writeError(w, errors.Join(domain.ErrInvalidDateParse, err))
		return
	}

	d, err := h.service.RecordDeposit(r.Context(), id, req.Amount, date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, http.StatusCreated, d)
}

// HandleImport handles POST /api/portfolios/{id}/import?policy=atomic
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	var rows []ledger.ImportRow
	if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	for i := range rows {
		if rows[i].Row == 0 {
			rows[i].Row = i + 1
		}
	}

	policy := ledger.BestEffort
	if strings.EqualFold(r.URL.Query().Get("policy"), "atomic") {
		policy = ledger.Atomic
	}

	results, err := h.service.ImportBatch(r.Context(), id, rows, policy)
	status := http.StatusOK
	if err != nil {
		status = http.StatusUnprocessableEntity
	}
	okCount, failed := ledger.ImportSummary(results)
	h.writeData(w, status, map[string]interface{}{
		"results":   results,
		"succeeded": okCount,
		"failed":    failed,
	})
}

func (h *Handler) portfolioID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid portfolio ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// writeError maps ledger errors onto HTTP status codes
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrOverSell):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnsupportedTradeType),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidDateParse):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Ledger request failed")
	}
	h.writeJSON(w, status, map[string]interface{}{"error": err.Error()})
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
