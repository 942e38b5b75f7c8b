// Package alert emails subscribers when a spot's upcoming rating crosses
// their threshold. A per-subscriber cooldown keeps one good swell from
// producing a mail every refresh cycle.
package alert

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog"

	"github.com/mkalwtb/magicnorthseaweed/internal/observability"
	"github.com/mkalwtb/magicnorthseaweed/internal/timeseries"
)

// Filter is one subscriber's alert criterion: notify Email when Spot's
// rating reaches MinRating within the forecast window.
type Filter struct {
	Email     string  `json:"email"`
	Spot      string  `json:"spot"`
	MinRating float64 `json:"min_rating"`
}

// LoadFilters reads subscriber filters from a JSON file. A missing file
// means no subscribers and is not an error.
func LoadFilters(file string) ([]Filter, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read alert filters: %w", err)
	}
	var filters []Filter
	if err := json.Unmarshal(data, &filters); err != nil {
		return nil, fmt.Errorf("parse alert filters: %w", err)
	}
	return filters, nil
}

// Sender delivers one message. *SMTPSender is the production
// implementation; tests substitute a recorder.
type Sender interface {
	Send(to, subject, body string) error
}

// Service evaluates alert filters against a rated batch.
type Service struct {
	filters []Filter
	sender  Sender
	log     *Log
	clock   clockwork.Clock
	metrics *observability.Metrics
	zlog    zerolog.Logger
}

// NewService builds the alert service. metrics may be nil.
func NewService(filters []Filter, sender Sender, log *Log, clock clockwork.Clock,
	metrics *observability.Metrics, zlog zerolog.Logger) *Service {
	return &Service{
		filters: filters,
		sender:  sender,
		log:     log,
		clock:   clock,
		metrics: metrics,
		zlog:    zlog.With().Str("component", "alert").Logger(),
	}
}

// Evaluate checks every filter against the rated batch and sends due
// alerts. Send failures are logged per filter and do not stop the sweep.
func (s *Service) Evaluate(frames map[string]*timeseries.Frame) error {
	var lastErr error
	for _, f := range s.filters {
		frame, ok := frames[f.Spot]
		if !ok {
			s.zlog.Warn().Str("spot", f.Spot).Str("email", f.Email).Msg("alert filter references unknown spot")
			continue
		}

		peak, peakAt, matched := peakRating(frame, f.MinRating)
		if !matched {
			continue
		}

		if !s.log.ShouldSend(f.Spot, f.Email, s.clock.Now()) {
			s.zlog.Debug().Str("spot", f.Spot).Str("email", f.Email).Msg("alert suppressed by cooldown")
			continue
		}

		subject := fmt.Sprintf("Surf alert: %s hits %.1f", f.Spot, peak)
		body, err := digest(f.Spot, frame, peak, peakAt)
		if err != nil {
			s.zlog.Error().Err(err).Str("spot", f.Spot).Msg("could not build alert digest")
			lastErr = err
			continue
		}

		if err := s.sender.Send(f.Email, subject, body); err != nil {
			s.zlog.Error().Err(err).Str("email", f.Email).Msg("could not send alert")
			lastErr = err
			continue
		}

		s.log.Record(f.Spot, f.Email, s.clock.Now())
		if s.metrics != nil {
			s.metrics.AlertsSent.Inc()
		}
		s.zlog.Info().
			Str("spot", f.Spot).
			Str("email", f.Email).
			Float64("peak", peak).
			Msg("alert sent")
	}
	return lastErr
}

// peakRating returns the highest rating in the frame and when it occurs,
// and whether it reaches the threshold. NaN rows never match.
func peakRating(frame *timeseries.Frame, threshold float64) (peak float64, at time.Time, matched bool) {
	vals, ok := frame.Column("rating")
	if !ok {
		return 0, time.Time{}, false
	}

	times := frame.Times()
	for i, v := range vals {
		if v != v { // NaN
			continue
		}
		if !matched || v > peak {
			peak = v
			at = times[i]
			matched = true
		}
	}
	return peak, at, matched && peak >= threshold
}

// digest summarizes the window for the mail body.
func digest(spot string, frame *timeseries.Frame, peak float64, peakAt time.Time) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Good news: %s is forecast to reach a %.1f rating at %s.\n\n",
		spot, peak, peakAt.Format("Mon 15:04"))

	for _, col := range []struct {
		name  string
		label string
		unit  string
	}{
		{"rating", "Rating", ""},
		{timeseries.ChanWaveHeight, "Wave height", " m"},
		{timeseries.ChanWavePeriod, "Wave period", " s"},
		{timeseries.ChanWindSpeed, "Wind speed", " m/s"},
	} {
		vals, ok := frame.Column(col.name)
		if !ok {
			continue
		}
		clean := dropNaN(vals)
		if len(clean) == 0 {
			continue
		}
		mean, err := stats.Mean(clean)
		if err != nil {
			return "", fmt.Errorf("summarize %s: %w", col.name, err)
		}
		max, err := stats.Max(clean)
		if err != nil {
			return "", fmt.Errorf("summarize %s: %w", col.name, err)
		}
		fmt.Fprintf(&b, "%s: avg %.1f%s, max %.1f%s\n", col.label, mean, col.unit, max, col.unit)
	}

	return b.String(), nil
}

func dropNaN(vals []float64) stats.Float64Data {
	out := make(stats.Float64Data, 0, len(vals))
	for _, v := range vals {
		if v == v {
			out = append(out, v)
		}
	}
	return out
}
