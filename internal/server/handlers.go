package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/folio/internal/database"
)

// handleHealth reports healthy when both databases answer a quick check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := map[string]string{}
	for name, db := range map[string]*database.DB{
		"ledger":  s.container.LedgerDB,
		"history": s.container.HistoryDB,
	} {
		if err := db.Conn().PingContext(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	response := map[string]interface{}{
		"status":    "healthy",
		"service":   "folio",
		"databases": checks,
	}
	if status != http.StatusOK {
		response["status"] = "unhealthy"
	}

	s.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
