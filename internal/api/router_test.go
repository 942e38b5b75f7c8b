package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkalwtb/magicnorthseaweed/internal/api/handlers"
	"github.com/mkalwtb/magicnorthseaweed/internal/cache"
	"github.com/mkalwtb/magicnorthseaweed/internal/spots"
	"github.com/mkalwtb/magicnorthseaweed/internal/stormglass"
	"github.com/mkalwtb/magicnorthseaweed/internal/timeseries"
	"github.com/mkalwtb/magicnorthseaweed/pkg/logger"
)

type staticProducer struct {
	frames map[string]*timeseries.Frame
}

func (p staticProducer) RateAll(context.Context) (map[string]*timeseries.Frame, error) {
	return p.frames, nil
}

func ratedBatch(t *testing.T) map[string]*timeseries.Frame {
	t.Helper()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	frame := timeseries.NewWithTimes([]time.Time{base, base.Add(time.Hour), base.Add(26 * time.Hour)})
	require.NoError(t, frame.SetColumn("rating", []float64{5, 7.5, 6}))
	require.NoError(t, frame.SetColumn(timeseries.ChanWaveHeight, []float64{1.2, 1.6, 1.4}))
	require.NoError(t, frame.SetColumn(timeseries.ChanWindSpeed, []float64{6, 8, 7}))
	return map[string]*timeseries.Frame{"ZV": frame}
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	log := logger.NewNop()

	c, err := cache.New(staticProducer{frames: ratedBatch(t)}, t.TempDir(), 12*time.Hour,
		clock, nil, zerolog.Nop())
	require.NoError(t, err)

	registry, err := spots.NewRegistry(spots.Defaults())
	require.NoError(t, err)

	keyring, err := stormglass.NewKeyring(filepath.Join(t.TempDir(), "api_usage.json"),
		[]string{"k"}, 10, clock, zerolog.Nop())
	require.NoError(t, err)

	forecast := handlers.NewForecastHandler(c, registry, log)
	system := handlers.NewSystemHandler(c, keyring, log)
	return NewRouter(forecast, system, prometheus.NewRegistry(), log)
}

func doRequest(t *testing.T, router http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	rec := doRequest(t, newTestRouter(t), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestGetSpotForecast(t *testing.T) {
	rec := doRequest(t, newTestRouter(t), http.MethodGet, "/api/forecast/zv")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Spot   string  `json:"spot"`
		Facing float64 `json:"facing"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "ZV", payload.Spot, "lookup is case-insensitive")
	assert.Equal(t, 290.0, payload.Facing)
}

func TestGetSpotForecastUnknown(t *testing.T) {
	rec := doRequest(t, newTestRouter(t), http.MethodGet, "/api/forecast/atlantis")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAllForecasts(t *testing.T) {
	rec := doRequest(t, newTestRouter(t), http.MethodGet, "/api/forecast")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Contains(t, payload, "ZV")
}

func TestOverview(t *testing.T) {
	rec := doRequest(t, newTestRouter(t), http.MethodGet, "/api/overview")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string][]struct {
		Date       string  `json:"date"`
		PeakRating float64 `json:"peak_rating"`
		PeakHour   int     `json:"peak_hour"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))

	days := payload["ZV"]
	require.Len(t, days, 2, "26h of forecast spans two daytime windows")
	assert.Equal(t, "2026-03-01", days[0].Date)
	assert.InDelta(t, 7.5, days[0].PeakRating, 1e-9)
	assert.Equal(t, 11, days[0].PeakHour)
}

func TestForceRefreshEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/refresh")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/cache/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var info cache.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.True(t, info.Fresh)
	assert.Equal(t, []string{"ZV"}, info.Spots)
}

func TestUsageEndpoint(t *testing.T) {
	rec := doRequest(t, newTestRouter(t), http.MethodGet, "/api/usage")
	require.Equal(t, http.StatusOK, rec.Code)

	var creds []stormglass.CredentialStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &creds))
	require.Len(t, creds, 1)
	assert.Equal(t, "key_0", creds[0].ID)
	assert.True(t, creds[0].Available)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := doRequest(t, newTestRouter(t), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}
