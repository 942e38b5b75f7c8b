package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkalwtb/magicnorthseaweed/internal/alert"
	"github.com/mkalwtb/magicnorthseaweed/internal/cache"
	"github.com/mkalwtb/magicnorthseaweed/internal/timeseries"
)

type staticProducer struct {
	frames map[string]*timeseries.Frame
	err    error
}

func (p staticProducer) RateAll(context.Context) (map[string]*timeseries.Frame, error) {
	return p.frames, p.err
}

type recordingSender struct{ sent int }

func (r *recordingSender) Send(string, string, string) error {
	r.sent++
	return nil
}

func ratedBatch(t *testing.T, rating float64) map[string]*timeseries.Frame {
	t.Helper()
	frame := timeseries.NewWithTimes([]time.Time{time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)})
	require.NoError(t, frame.SetColumn("rating", []float64{rating}))
	return map[string]*timeseries.Frame{"ZV": frame}
}

func TestRefreshJobRefreshesAndAlerts(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c, err := cache.New(staticProducer{frames: ratedBatch(t, 8)}, t.TempDir(), 12*time.Hour,
		clock, nil, zerolog.Nop())
	require.NoError(t, err)

	sender := &recordingSender{}
	alertLog := alert.OpenLog(filepath.Join(t.TempDir(), "alert_log.json"), zerolog.Nop())
	alerts := alert.NewService([]alert.Filter{{Email: "a@example.com", Spot: "ZV", MinRating: 6}},
		sender, alertLog, clock, nil, zerolog.Nop())

	job := NewRefreshJob(c, alerts, "0 0 */12 * * *", zerolog.Nop())
	assert.Equal(t, "forecast-refresh", job.Name())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, sender.sent)
	assert.True(t, c.Info().Fresh)
}

func TestRefreshJobFailsWhenRefreshFails(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c, err := cache.New(staticProducer{err: errors.New("upstream down")}, t.TempDir(),
		12*time.Hour, clock, nil, zerolog.Nop())
	require.NoError(t, err)

	job := NewRefreshJob(c, nil, "0 0 */12 * * *", zerolog.Nop())
	assert.Error(t, job.Run(context.Background()))
}
