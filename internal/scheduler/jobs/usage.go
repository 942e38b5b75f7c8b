package jobs

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mkalwtb/magicnorthseaweed/internal/stormglass"
)

// UsageJob logs the upstream credential usage once a day, shortly before
// the quota rollover, so the daily consumption ends up in the logs.
type UsageJob struct {
	keyring  *stormglass.Keyring
	schedule string
	log      zerolog.Logger
}

func NewUsageJob(keyring *stormglass.Keyring, schedule string, log zerolog.Logger) *UsageJob {
	return &UsageJob{
		keyring:  keyring,
		schedule: schedule,
		log:      log.With().Str("job", "usage-report").Logger(),
	}
}

func (j *UsageJob) Name() string     { return "usage-report" }
func (j *UsageJob) Schedule() string { return j.schedule }

func (j *UsageJob) Run(context.Context) error {
	for _, cred := range j.keyring.Summary() {
		j.log.Info().
			Str("key_id", cred.ID).
			Int("requests_today", cred.RequestsToday).
			Int("daily_quota", cred.DailyQuota).
			Int("total_requests", cred.TotalRequests).
			Bool("available", cred.Available).
			Msg("credential usage")
	}
	return nil
}
