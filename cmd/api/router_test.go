package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/FACorreiaa/collections-portal/pkg/config"
)

type fakeHealth struct{ err error }

func (f fakeHealth) Health(context.Context) error { return f.err }
func (f fakeHealth) Stats() map[string]any        { return map[string]any{"total_conns": 3} }

func utilityRouter(health HealthChecker, cfg *config.Config) http.Handler {
	r := chi.NewRouter()
	registerUtilityRoutes(r, health, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return r
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestUtilityRoutes_Healthy(t *testing.T) {
	cfg := &config.Config{Observability: config.ObservabilityConfig{MetricsEnabled: true}}
	h := utilityRouter(fakeHealth{}, cfg)

	rec := get(h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = get(h, "/health/details")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_conns":3`)
	assert.Contains(t, rec.Body.String(), `"ai":{"status":"warn"`)

	assert.Equal(t, http.StatusOK, get(h, "/ready").Code)
	assert.Equal(t, http.StatusOK, get(h, "/metrics").Code)
}

func TestUtilityRoutes_DatabaseDown(t *testing.T) {
	cfg := &config.Config{AI: config.AIConfig{APIKey: "configured"}}
	h := utilityRouter(fakeHealth{err: errors.New("connection refused")}, cfg)

	assert.Equal(t, http.StatusServiceUnavailable, get(h, "/health").Code)

	rec := get(h, "/health/details")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
	assert.Equal(t, http.StatusNotFound, get(h, "/metrics").Code)
}

func TestNoStoreAndCORS(t *testing.T) {
	r := chi.NewRouter()
	r.Use(noStore)
	r.Get("/api/x", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := newCORS([]string{"https://portal.example.com"}).Handler(r)

	req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "https://portal.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}
