// Package handlers provides HTTP handlers for cached price history.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/market_data"
	"github.com/aristath/folio/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles price history HTTP requests
type Handler struct {
	history *market_data.HistoryRepository
	tickers *market_data.TickerRepository
	now     func() time.Time
	log     zerolog.Logger
}

// NewHandler creates a new price history handler
func NewHandler(
	history *market_data.HistoryRepository,
	tickers *market_data.TickerRepository,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		history: history,
		tickers: tickers,
		now:     time.Now,
		log:     log.With().Str("handler", "market_data").Logger(),
	}
}

// HandleGetPrices handles GET /api/prices?tickers=BHP,CBA.AX&start=&end=&interval=
func (h *Handler) HandleGetPrices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	tickers := parseTickers(q.Get("tickers"))
	if len(tickers) == 0 {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "tickers is required"})
		return
	}

	start, end, err := parseRange(q.Get("start"), q.Get("end"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}

	interval, err := domain.ParseInterval(q.Get("interval"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}

	series, err := h.history.RangeQuery(r.Context(), tickers, start, end, interval)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"series": series,
		"count":  len(series),
	})
}

// HandleListTickers handles GET /api/tickers
func (h *Handler) HandleListTickers(w http.ResponseWriter, r *http.Request) {
	tickers, err := h.tickers.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, map[string]interface{}{
		"tickers": tickers,
		"count":   len(tickers),
	})
}

// HandleGetGaps handles GET /api/tickers/{symbol}/gaps?start=&end=
// Gaps are weekdays without a stored bar; exchange holidays are included.
func (h *Handler) HandleGetGaps(w http.ResponseWriter, r *http.Request) {
	symbol := market_data.DeriveSymbolParts(chi.URLParam(r, "symbol")).Symbol

	start, end, err := parseRange(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	if start.IsZero() {
		start = utils.DateOnly(h.now()).AddDate(0, -1, 0)
	}
	if end.IsZero() {
		end = utils.DateOnly(h.now())
	}

	gaps, err := h.history.FindGaps(r.Context(), symbol, start, end)
	if err != nil {
		h.writeError(w, err)
		return
	}

	dates := make([]string, len(gaps))
	for i, g := range gaps {
		dates[i] = utils.FormatDate(g)
	}
	h.writeData(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"start":  utils.FormatDate(start),
		"end":    utils.FormatDate(end),
		"gaps":   dates,
	})
}

// parseTickers splits a comma separated list and qualifies each symbol
func parseTickers(raw string) []string {
	symbols := utils.ParseSymbols(raw)
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		out = append(out, market_data.DeriveSymbolParts(sym).Symbol)
	}
	return out
}

// parseRange parses optional YYYY-MM-DD bounds; empty values stay zero
func parseRange(rawStart, rawEnd string) (start, end time.Time, err error) {
	if rawStart != "" {
		if start, err = utils.ParseDate(rawStart); err != nil {
			return start, end, err
		}
	}
	if rawEnd != "" {
		if end, err = utils.ParseDate(rawEnd); err != nil {
			return start, end, err
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return start, end, fmt.Errorf("end %s is before start %s", rawEnd, rawStart)
	}
	return start, end, nil
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrUnsupportedInterval) {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	h.log.Error().Err(err).Msg("Price history request failed")
	h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
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
