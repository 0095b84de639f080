package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/folio/internal/config"
	"github.com/aristath/folio/internal/modules/market_hours"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHandler(t *testing.T, now time.Time) *Handler {
	t.Helper()
	service, err := market_hours.NewMarketHoursService(config.MarketConfig{
		Timezone: "Australia/Sydney", Open: "10:00", Close: "16:10",
	})
	require.NoError(t, err)

	h := NewHandler(service, zerolog.New(nil).Level(zerolog.Disabled))
	h.now = func() time.Time { return now }
	return h
}

func TestHandleGetStatus(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		wantOpen bool
	}{
		// 02:00 UTC on a Wednesday is 13:00 in Sydney
		{"open session", time.Date(2024, 1, 3, 2, 0, 0, 0, time.UTC), true},
		{"weekend", time.Date(2024, 1, 6, 2, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := chi.NewRouter()
			newHandler(t, tt.now).RegisterRoutes(router)

			req := httptest.NewRequest(http.MethodGet, "/market-hours/status", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var response struct {
				Data market_hours.MarketStatus `json:"data"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.wantOpen, response.Data.Open)
			assert.Equal(t, "Australia/Sydney", response.Data.Timezone)
		})
	}
}
