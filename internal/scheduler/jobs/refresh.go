// Package jobs holds the scheduled jobs of the forecast service.
package jobs

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mkalwtb/magicnorthseaweed/internal/alert"
	"github.com/mkalwtb/magicnorthseaweed/internal/cache"
)

// RefreshJob replaces the forecast cache payload and then runs the alert
// sweep over the fresh batch.
type RefreshJob struct {
	cache    *cache.Cache
	alerts   *alert.Service
	schedule string
	log      zerolog.Logger
}

// NewRefreshJob builds the refresh job. alerts may be nil when alerting is
// disabled.
func NewRefreshJob(c *cache.Cache, alerts *alert.Service, schedule string, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{
		cache:    c,
		alerts:   alerts,
		schedule: schedule,
		log:      log.With().Str("job", "forecast-refresh").Logger(),
	}
}

func (j *RefreshJob) Name() string     { return "forecast-refresh" }
func (j *RefreshJob) Schedule() string { return j.schedule }

func (j *RefreshJob) Run(ctx context.Context) error {
	if err := j.cache.ForceRefresh(ctx); err != nil {
		return fmt.Errorf("refresh forecast cache: %w", err)
	}

	if j.alerts == nil {
		return nil
	}

	frames, err := j.cache.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("read refreshed cache: %w", err)
	}
	if err := j.alerts.Evaluate(frames); err != nil {
		// The refresh itself succeeded; alert failures are logged but do
		// not mark the cycle failed (and retried) as a whole.
		j.log.Error().Err(err).Msg("alert sweep had failures")
	}
	return nil
}
