package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/folio/internal/modules/market_data"
	testingpkg "github.com/aristath/folio/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHandler(t *testing.T) *chi.Mux {
	t.Helper()
	db, _ := testingpkg.NewTestDB(t, "history")
	log := zerolog.New(nil).Level(zerolog.Disabled)
	ctx := context.Background()

	history := market_data.NewHistoryRepository(db.Conn(), log)
	tickers := market_data.NewTickerRepository(db.Conn(), log)

	// Ten weekdays from Mon 2024-01-01, with Thu 2024-01-04 missing
	bars := testingpkg.NewPriceBarFixtures(testingpkg.Day(2024, 1, 1), 10, 40, 0.5)
	bars = append(bars[:3], bars[4:]...)
	_, err := history.UpsertBars(ctx, "BHP.AX", bars)
	require.NoError(t, err)
	require.NoError(t, tickers.Upsert(ctx, market_data.Ticker{Symbol: "BHP.AX", Ticker: "BHP", Exchange: "ASX"}))

	h := NewHandler(history, tickers, log)
	h.now = func() time.Time { return time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC) }

	router := chi.NewRouter()
	h.RegisterRoutes(router)
	return router
}

func get(t *testing.T, router http.Handler, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestHandleGetPrices(t *testing.T) {
	router := setupHandler(t)

	w, body := get(t, router, "/prices?tickers=bhp,UNKNOWN&start=2024-01-01&end=2024-01-12")
	require.Equal(t, http.StatusOK, w.Code)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["count"])

	series := data["series"].([]interface{})
	bhp := series[0].(map[string]interface{})
	assert.Equal(t, "BHP.AX", bhp["ticker"])
	assert.Len(t, bhp["bars"].([]interface{}), 9)

	unknown := series[1].(map[string]interface{})
	assert.Equal(t, "UNKNOWN.AX", unknown["ticker"])
	assert.Empty(t, unknown["bars"])
}

func TestHandleGetPrices_Weekly(t *testing.T) {
	router := setupHandler(t)

	w, body := get(t, router, "/prices?tickers=BHP.AX&start=2024-01-01&end=2024-01-12&interval=weekly")
	require.Equal(t, http.StatusOK, w.Code)

	series := body["data"].(map[string]interface{})["series"].([]interface{})
	weekly := series[0].(map[string]interface{})
	assert.Equal(t, "1wk", weekly["interval"])
	assert.Len(t, weekly["bars"].([]interface{}), 2)
}

func TestHandleGetPrices_BadRequests(t *testing.T) {
	router := setupHandler(t)

	tests := []struct {
		name string
		path string
	}{
		{"missing tickers", "/prices"},
		{"bad start", "/prices?tickers=BHP&start=01/01/2024"},
		{"end before start", "/prices?tickers=BHP&start=2024-02-01&end=2024-01-01"},
		{"bad interval", "/prices?tickers=BHP&interval=hourly"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := get(t, router, tt.path)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestHandleListTickers(t *testing.T) {
	router := setupHandler(t)

	w, body := get(t, router, "/tickers/")
	require.Equal(t, http.StatusOK, w.Code)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["count"])
}

func TestHandleGetGaps(t *testing.T) {
	router := setupHandler(t)

	w, body := get(t, router, "/tickers/BHP/gaps?start=2024-01-01&end=2024-01-12")
	require.Equal(t, http.StatusOK, w.Code)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, "BHP.AX", data["symbol"])
	assert.Equal(t, []interface{}{"2024-01-04"}, data["gaps"])
}
