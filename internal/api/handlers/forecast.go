// Package handlers holds the HTTP handlers of the forecast API.
package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"sort"

	"github.com/gorilla/mux"
	"github.com/montanaflynn/stats"

	"github.com/mkalwtb/magicnorthseaweed/internal/cache"
	"github.com/mkalwtb/magicnorthseaweed/internal/spots"
	"github.com/mkalwtb/magicnorthseaweed/internal/stormglass"
	"github.com/mkalwtb/magicnorthseaweed/internal/timeseries"
	"github.com/mkalwtb/magicnorthseaweed/pkg/logger"
)

// ForecastHandler serves rated forecasts from the cache.
type ForecastHandler struct {
	cache    *cache.Cache
	registry *spots.Registry
	logger   *logger.Logger
}

// NewForecastHandler creates a new forecast handler.
func NewForecastHandler(c *cache.Cache, registry *spots.Registry, log *logger.Logger) *ForecastHandler {
	return &ForecastHandler{
		cache:    c,
		registry: registry,
		logger:   log,
	}
}

// SpotForecast is the per-spot API payload.
type SpotForecast struct {
	Spot     string            `json:"spot"`
	Facing   float64           `json:"facing"`
	Forecast *timeseries.Frame `json:"forecast"`
}

// GetSpot returns the rated forecast for one spot.
// GET /api/forecast/{spot}
func (h *ForecastHandler) GetSpot(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["spot"]

	spot, err := h.registry.Find(name)
	if err != nil {
		respondError(w, http.StatusNotFound, "Unknown spot: "+name)
		return
	}

	frame, err := h.cache.Get(r.Context(), spot.Name)
	if err != nil {
		h.respondCacheError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, SpotForecast{
		Spot:     spot.Name,
		Facing:   spot.Facing,
		Forecast: frame,
	})
}

// GetAll returns the rated forecast for every cached spot.
// GET /api/forecast
func (h *ForecastHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	frames, err := h.cache.GetAll(r.Context())
	if err != nil {
		h.respondCacheError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, frames)
}

// DaySummary condenses one forecast day during daytime hours.
type DaySummary struct {
	Date          string  `json:"date"`
	PeakRating    float64 `json:"peak_rating"`
	PeakHour      int     `json:"peak_hour"`
	AvgWaveHeight float64 `json:"avg_wave_height"`
	AvgWindSpeed  float64 `json:"avg_wind_speed"`
}

// Overview returns a per-spot, per-day condensed view of the whole window.
// GET /api/overview
func (h *ForecastHandler) Overview(w http.ResponseWriter, r *http.Request) {
	frames, err := h.cache.GetAll(r.Context())
	if err != nil {
		h.respondCacheError(w, err)
		return
	}

	out := make(map[string][]DaySummary, len(frames))
	for name, frame := range frames {
		out[name] = summarizeDays(frame)
	}
	respondJSON(w, http.StatusOK, out)
}

// daytime bounds for the overview, hours of day inclusive.
const (
	overviewFirstHour = 8
	overviewLastHour  = 20
)

// summarizeDays folds the daytime hours of each forecast day into one row.
func summarizeDays(frame *timeseries.Frame) []DaySummary {
	type agg struct {
		peak     float64
		peakHour int
		heights  stats.Float64Data
		winds    stats.Float64Data
		hasPeak  bool
	}

	days := make(map[string]*agg)
	times := frame.Times()
	for i, ts := range times {
		hour := ts.UTC().Hour()
		if hour < overviewFirstHour || hour > overviewLastHour {
			continue
		}
		date := ts.UTC().Format("2006-01-02")
		a, ok := days[date]
		if !ok {
			a = &agg{}
			days[date] = a
		}

		if rating := frame.Value("rating", i); !math.IsNaN(rating) {
			if !a.hasPeak || rating > a.peak {
				a.peak = rating
				a.peakHour = hour
				a.hasPeak = true
			}
		}
		if hgt := frame.Value(timeseries.ChanWaveHeight, i); !math.IsNaN(hgt) {
			a.heights = append(a.heights, hgt)
		}
		if wind := frame.Value(timeseries.ChanWindSpeed, i); !math.IsNaN(wind) {
			a.winds = append(a.winds, wind)
		}
	}

	dates := make([]string, 0, len(days))
	for date := range days {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	out := make([]DaySummary, 0, len(dates))
	for _, date := range dates {
		a := days[date]
		summary := DaySummary{Date: date, PeakRating: a.peak, PeakHour: a.peakHour}
		if mean, err := stats.Mean(a.heights); err == nil {
			summary.AvgWaveHeight = mean
		}
		if mean, err := stats.Mean(a.winds); err == nil {
			summary.AvgWindSpeed = mean
		}
		out = append(out, summary)
	}
	return out
}

// respondCacheError distinguishes a quota stop from an ordinary failure.
func (h *ForecastHandler) respondCacheError(w http.ResponseWriter, err error) {
	h.logger.WithError(err).Error("Failed to serve forecast from cache")
	if errors.Is(err, stormglass.ErrQuotaExhausted) {
		respondError(w, http.StatusServiceUnavailable, "Upstream quota exhausted for today")
		return
	}
	respondError(w, http.StatusInternalServerError, "Failed to retrieve forecast")
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
