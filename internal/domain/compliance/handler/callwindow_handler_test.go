package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/collections-portal/internal/domain/compliance"
)

func TestCallWindowHandler_Check(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2024, time.March, 4, 22, 0, 0, 0, ny)

	calc, err := compliance.NewCalculator(nil, compliance.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	r := chi.NewRouter()
	NewCallWindowHandler(calc, slog.New(slog.NewTextHandler(io.Discard, nil))).Routes(r)

	t.Run("outside window", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/call-window?phone="+url.QueryEscape("(212) 555-0100"), nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Data compliance.Status `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.False(t, body.Data.Allowed)
		assert.Equal(t, "America/New_York", body.Data.Timezone)
		assert.True(t, body.Data.NextWindow.Equal(time.Date(2024, time.March, 5, 8, 0, 0, 0, ny)))
	})

	t.Run("short number", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/call-window?phone=555", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
