// Package rater orchestrates the per-spot rating pipeline: fetch the raw
// forecast window, enrich it with the spot's derived features, and apply
// the target ensemble.
package rater

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/mkalwtb/magicnorthseaweed/internal/features"
	"github.com/mkalwtb/magicnorthseaweed/internal/models"
	"github.com/mkalwtb/magicnorthseaweed/internal/observability"
	"github.com/mkalwtb/magicnorthseaweed/internal/spots"
	"github.com/mkalwtb/magicnorthseaweed/internal/timeseries"
)

// ForecastSource yields the raw channel frame for a coordinate window.
// *stormglass.Client is the production implementation.
type ForecastSource interface {
	Fetch(ctx context.Context, spot spots.Spot, from, to time.Time) (*timeseries.Frame, error)
}

// Rater runs the fetch-enrich-rate cycle for registered spots.
type Rater struct {
	source   ForecastSource
	ensemble *models.Ensemble
	registry *spots.Registry
	metrics  *observability.Metrics
	horizon  time.Duration
	clock    clockwork.Clock
	log      zerolog.Logger
}

// New builds a rater. metrics may be nil.
func New(source ForecastSource, ensemble *models.Ensemble, registry *spots.Registry,
	metrics *observability.Metrics, horizon time.Duration, clock clockwork.Clock, log zerolog.Logger) *Rater {
	return &Rater{
		source:   source,
		ensemble: ensemble,
		registry: registry,
		metrics:  metrics,
		horizon:  horizon,
		clock:    clock,
		log:      log.With().Str("component", "rater").Logger(),
	}
}

// Window returns the current rating window: the top of the current hour
// through the configured horizon.
func (r *Rater) Window() (from, to time.Time) {
	from = r.clock.Now().UTC().Truncate(time.Hour)
	return from, from.Add(r.horizon)
}

// RateSpot produces the rated frame for one spot: raw channels, derived
// feature columns and one prediction column per target.
func (r *Rater) RateSpot(ctx context.Context, spot spots.Spot) (*timeseries.Frame, error) {
	start := r.clock.Now()
	frame, err := r.rateSpot(ctx, spot)
	if r.metrics != nil {
		r.metrics.SpotRatingDuration.Observe(r.clock.Now().Sub(start).Seconds())
		if err != nil {
			r.metrics.SpotRatingErrors.Inc()
		}
	}
	return frame, err
}

func (r *Rater) rateSpot(ctx context.Context, spot spots.Spot) (*timeseries.Frame, error) {
	from, to := r.Window()

	raw, err := r.source.Fetch(ctx, spot, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch forecast for %s: %w", spot.Name, err)
	}

	enriched, err := features.Enrich(raw, spot)
	if err != nil {
		return nil, fmt.Errorf("enrich forecast for %s: %w", spot.Name, err)
	}

	rated, err := r.ensemble.Apply(enriched)
	if err != nil {
		return nil, fmt.Errorf("rate forecast for %s: %w", spot.Name, err)
	}

	r.log.Debug().
		Str("spot", spot.Name).
		Int("rows", rated.Len()).
		Time("from", from).
		Time("to", to).
		Msg("spot rated")
	return rated, nil
}

// RateAll rates every registered spot. Per-spot failures are logged and
// skipped; an error is returned only when no spot could be rated at all,
// wrapping the last failure.
func (r *Rater) RateAll(ctx context.Context) (map[string]*timeseries.Frame, error) {
	all := r.registry.All()
	out := make(map[string]*timeseries.Frame, len(all))

	var lastErr error
	for _, spot := range all {
		frame, err := r.RateSpot(ctx, spot)
		if err != nil {
			r.log.Error().Err(err).Str("spot", spot.Name).Msg("rating failed")
			lastErr = err
			continue
		}
		out[spot.Name] = frame
	}

	if len(out) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("no spot could be rated: %w", lastErr)
		}
		return nil, fmt.Errorf("no spots registered")
	}
	return out, nil
}
