package work

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlers_ListWorkTypes(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&WorkType{ID: "market:refresh", Execute: noop})
	registry.Register(&WorkType{ID: "ledger:backup", Execute: noop})

	p := newTestProcessor(t, registry, time.Second, 1)
	_, err := p.ExecuteNow(context.Background(), "ledger:backup", nil)
	require.NoError(t, err)

	router := chi.NewRouter()
	NewHandlers(p, registry).RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodGet, "/work/types", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Types []map[string]any `json:"types"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Types, 2)
	assert.Equal(t, "ledger:backup", body.Types[0]["id"])
	assert.Contains(t, body.Types[0], "last_result")
	assert.NotContains(t, body.Types[1], "last_result")
}

func TestHandlers_EnqueueWorkType(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&WorkType{ID: "market:refresh", Execute: noop})

	p := newTestProcessor(t, registry, time.Second, 1)
	router := chi.NewRouter()
	NewHandlers(p, registry).RegisterRoutes(router)

	t.Run("known type", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/work/market:refresh/enqueue", nil))

		assert.Equal(t, http.StatusAccepted, rec.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.NotEmpty(t, body["id"])
	})

	t.Run("unknown type", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/work/nope/enqueue", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
